// Copyright 2018 The Cockroach Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/olekukonko/tablewriter"
)

type tableDisplayFormat int

const (
	tableDisplayTSV tableDisplayFormat = iota
	tableDisplayCSV
	tableDisplayTable
)

var tableDisplayFormats = []string{"tsv", "csv", "table"}

// String implements the pflag.Value interface.
func (f *tableDisplayFormat) String() string {
	return tableDisplayFormats[*f]
}

// Type implements the pflag.Value interface.
func (f *tableDisplayFormat) Type() string {
	return "string"
}

// Set implements the pflag.Value interface.
func (f *tableDisplayFormat) Set(s string) error {
	for i, name := range tableDisplayFormats {
		if s == name {
			*f = tableDisplayFormat(i)
			return nil
		}
	}
	return errors.Newf("invalid table display format: %s (possible values: %s)",
		s, strings.Join(tableDisplayFormats, ", "))
}

// printTable writes a list of column names and a list of rows to w in the
// given format.
func printTable(w io.Writer, cols []string, rows [][]string, format tableDisplayFormat) error {
	switch format {
	case tableDisplayTable:
		table := tablewriter.NewWriter(w)
		table.SetAutoFormatHeaders(false)
		table.SetAutoWrapText(false)
		table.SetHeader(cols)
		table.AppendBulk(rows)
		table.Render()
		fmt.Fprintf(w, "(%d row%s)\n", len(rows), pluralize(len(rows)))
		return nil

	case tableDisplayTSV, tableDisplayCSV:
		cw := csv.NewWriter(w)
		if format == tableDisplayTSV {
			cw.Comma = '\t'
		}
		if err := cw.Write(cols); err != nil {
			return err
		}
		if err := cw.WriteAll(rows); err != nil {
			return err
		}
		return cw.Error()
	}
	return errors.AssertionFailedf("unknown table display format %d", format)
}

func pluralize(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
