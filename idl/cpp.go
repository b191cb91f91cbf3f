package idl

import (
	"strings"
)

// Marks the start of a harvested error-code list.  The list ends at
// the next empty line.
const errorCodesComment = "/* Error codes */"

// Prepare IDL source for the lexer.  Comments and "#if 0" blocks are
// removed, #include, #define and %-passthrough lines are blanked, and
// an error-code region introduced by "/* Error codes */" is bracketed
// with begin/end markers.  Every input line yields exactly one output
// line, after a leading __NEWFILE__ line carrying filename.
func Preprocess(filename, data string) string {
	lines := strings.Split(strings.ReplaceAll(data, "\r\n", "\n"), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	inComment, inErrors := false, false
	for i, l := range lines {
		if !inComment {
			if l == errorCodesComment && !inErrors {
				inErrors = true
				lines[i] = beginErrorsMarker
				continue
			} else if inErrors && l == "" {
				inErrors = false
				lines[i] = endErrorsMarker
				continue
			}
		}
		lines[i], inComment = stripBlockComments(l, inComment)
	}
	if inErrors {
		lines = append(lines, endErrorsMarker)
	}

	skipping := false
	for i, l := range lines {
		if p := strings.Index(l, "//"); p >= 0 {
			l = l[:p]
		}
		switch {
		case skipping:
			if l == "#endif" {
				skipping = false
			}
			l = ""
		case l == "#if 0":
			skipping = true
			l = ""
		case strings.HasPrefix(l, "#include"),
			strings.HasPrefix(l, "#define"),
			strings.HasPrefix(l, "%"):
			l = ""
		}
		lines[i] = l
	}

	return newfileMarker + " " + filename + "\n" + strings.Join(lines, "\n") +
		"\n"
}

// Remove /* */ comments from one line, given whether the line starts
// inside a comment.  Reports whether the line ends inside a comment.
func stripBlockComments(l string, inComment bool) (string, bool) {
	out := strings.Builder{}
	for {
		if inComment {
			p := strings.Index(l, "*/")
			if p < 0 {
				return out.String(), true
			}
			l = l[p+2:]
			inComment = false
		} else {
			p := strings.Index(l, "/*")
			if p < 0 {
				out.WriteString(l)
				return out.String(), false
			}
			out.WriteString(l[:p])
			l = l[p+2:]
			inComment = true
		}
	}
}
