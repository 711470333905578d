// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package cost

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const Currency = "₹"

var indianEnglish = language.MustParse("en-IN")

// Formats an amount in rupees with Indian digit grouping and two decimals, e.g. ₹1,23,456.70
func FormatINR(amount float64) string {
	p := message.NewPrinter(indianEnglish)
	return Currency + p.Sprintf("%.2f", amount)
}
