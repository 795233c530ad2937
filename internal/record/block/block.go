// Package block reads indentation-structured text (experiment summaries and
// acquisition .index files) into a tree of entries.
package block

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

const tabWidth = 4

// Entry is one line of an indented document together with its nested lines.
type Entry struct {
	// Text is the trimmed line with a trailing ':' removed.
	Text     string
	Children []*Entry
	File     string
	// LineNo is 1-based; zero for the synthetic root.
	LineNo int
	indent int
}

// Parse reads r and returns a synthetic root whose children are the top-level entries.
// Blank lines and lines starting with '#' are skipped.
func Parse(r io.Reader, file string) (*Entry, error) {
	root := &Entry{File: file, indent: -1}
	stack := []*Entry{root}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := strings.ReplaceAll(sc.Text(), "\t", strings.Repeat(" ", tabWidth))
		raw = strings.TrimRight(raw, " \r")
		trimmed := strings.TrimLeft(raw, " ")
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		indent := len(raw) - len(trimmed)
		for len(stack) > 1 && stack[len(stack)-1].indent >= indent {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1]
		entry := &Entry{
			Text:   strings.TrimSuffix(trimmed, ":"),
			File:   file,
			LineNo: lineNo,
			indent: indent,
		}
		parent.Children = append(parent.Children, entry)
		stack = append(stack, entry)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	return root, nil
}

// ParseFile parses the file at path.
func ParseFile(path string) (*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Parse(f, path)
}

// Child returns the first direct child whose text equals name.
func (e *Entry) Child(name string) (*Entry, bool) {
	for _, ch := range e.Children {
		if ch.Text == name {
			return ch, true
		}
	}
	return nil, false
}

func (e *Entry) String() string {
	if e.File == "" {
		return fmt.Sprintf("%q", e.Text)
	}
	return fmt.Sprintf("%q (%s:%d)", e.Text, e.File, e.LineNo)
}
