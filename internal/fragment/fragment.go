// Copyright 2026 The chainconsumer Authors
// This file is part of chainconsumer.
//
// chainconsumer is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// chainconsumer is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with chainconsumer. If not, see <http://www.gnu.org/licenses/>.

// Package fragment implements the typed key/value fragment grammar: a key
// (or, for value_string, a value) of the form
//
//	desc%desc%..__val0__val1__...
//
// where each desc is one of "$"/"s" (string fragment) or "#"/"d" (integer
// fragment), is split into up to 11 nullable typed columns.
package fragment

import (
	"fmt"
	"strconv"
	"strings"
)

// Separator splits the header from its values, and the values from each other.
const Separator = "__"

// MaxFragments is the number of fragment_N_{integer,string} column pairs
// the store provides (fragment_0 .. fragment_10).
const MaxFragments = 11

// Set holds the up-to-11 typed fragments extracted from one key or value.
// At most one of Integer[i]/String[i] is non-nil for a given i.
type Set struct {
	Integer [MaxFragments]*int64
	String  [MaxFragments]*string
}

// Parse extracts fragments from s using the documented descriptor grammar.
// A string with no "__" separator yields an empty Set and no error: absence
// of a header is not malformed, it simply carries no fragments. A header
// naming a descriptor outside {$, s, #, d} is rejected with an error rather
// than silently ignored, per the fixed grammar.
func Parse(s string) (Set, error) {
	var out Set

	parts := strings.Split(s, Separator)
	if len(parts) < 2 {
		return out, nil
	}

	descriptors := strings.Split(parts[0], "%")
	values := parts[1:]

	for _, desc := range descriptors {
		if desc != "$" && desc != "s" && desc != "#" && desc != "d" {
			return Set{}, fmt.Errorf("fragment: unknown descriptor %q in header of %q", desc, s)
		}
	}

	for i, desc := range descriptors {
		if i >= MaxFragments || i >= len(values) {
			break
		}
		v := values[i]

		switch desc {
		case "$", "s":
			if v != "" {
				val := v
				out.String[i] = &val
			}
		case "#", "d":
			if v != "" {
				if n, err := strconv.ParseInt(v, 10, 64); err == nil {
					out.Integer[i] = &n
				}
			}
		default:
			return Set{}, fmt.Errorf("fragment: unknown descriptor %q in header of %q", desc, s)
		}
	}

	return out, nil
}
