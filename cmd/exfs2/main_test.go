// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nazmavali/exfs2/lib/exfs2"
	"github.com/nazmavali/exfs2/lib/filemap"
)

func TestSelectModeRequiresExactlyOne(t *testing.T) {
	if _, err := selectMode(modeFlags{}); err == nil {
		t.Fatal("expected error when no mode flag is set")
	}
	if _, err := selectMode(modeFlags{list: true, removePath: "/x"}); err == nil {
		t.Fatal("expected error when two mode flags are set")
	}
}

func TestSelectModeAddRequiresFile(t *testing.T) {
	if _, err := selectMode(modeFlags{addPath: "/x"}); err == nil {
		t.Fatal("expected error for -a without -f")
	}
	m, err := selectMode(modeFlags{addPath: "/x", localFile: "src"})
	if err != nil || m != modeAdd {
		t.Fatalf("selectMode = (%v, %v), want (modeAdd, nil)", m, err)
	}
}

func TestSelectModeEachFlagAlone(t *testing.T) {
	cases := []struct {
		flags modeFlags
		want  mode
	}{
		{modeFlags{list: true}, modeList},
		{modeFlags{removePath: "/x"}, modeRemove},
		{modeFlags{extractPath: "/x"}, modeExtract},
		{modeFlags{debugPath: "/x"}, modeDebug},
		{modeFlags{mountPoint: "/mnt"}, modeMount},
	}
	for _, c := range cases {
		got, err := selectMode(c.flags)
		if err != nil || got != c.want {
			t.Errorf("selectMode(%+v) = (%v, %v), want (%v, nil)", c.flags, got, err, c.want)
		}
	}
}

func TestPrintTreeIndentsByDepth(t *testing.T) {
	tree := exfs2.Node{
		Name: "/",
		IsDir: true,
		Children: []exfs2.Node{
			{Name: "a", IsDir: true, Children: []exfs2.Node{
				{Name: "b", IsDir: true, Children: []exfs2.Node{
					{Name: "c", IsDir: true, Children: []exfs2.Node{
						{Name: "t.txt", IsDir: false},
					}},
				}},
			}},
		},
	}

	var buf bytes.Buffer
	printTree(&buf, tree)

	want := "/\n  a/\n    b/\n      c/\n        t.txt\n"
	if buf.String() != want {
		t.Fatalf("printTree =\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestPrintDebugIncludesFileSummary(t *testing.T) {
	report := exfs2.DebugReport{
		Levels: []exfs2.DirLevel{{Name: "/", Entries: nil}},
		File: &filemap.Stat{
			Size:   5,
			Direct: filemap.LevelStat{Count: 1, First: 7, Last: 7},
		},
	}
	var buf bytes.Buffer
	printDebug(&buf, report)
	if !strings.Contains(buf.String(), "/:") {
		t.Fatalf("printDebug output missing root level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "size: 5\n") {
		t.Fatalf("printDebug output missing file size: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "direct: count=1 first=7 last=7\n") {
		t.Fatalf("printDebug output missing direct block summary: %q", buf.String())
	}
}
