package graph

import "strings"

// ExtractedRef is a file path or URL pulled out of structured tool
// arguments.
type ExtractedRef struct {
	Value string // normalized path or URL
	IsURL bool
}

// Attribute keys that carry a file path or URL directly. Extraction is
// key-based, never interpretive: no content is parsed, only argument fields.
var (
	pathKeys = []string{"file_path", "path", "filename", "file", "notebook_path", "target", "source"}
	urlKeys  = []string{"url", "uri", "endpoint", "address"}
)

// maxCommandTokens bounds the shell-argument scanner so a pathological
// command line cannot blow up extraction.
const maxCommandTokens = 64

// ExtractRefs pulls file paths and URLs out of a tool call's structured
// arguments: direct path/URL keys first, then a bounded token scan of any
// "command" argument for shell-style invocations.
func ExtractRefs(attrs map[string]string) []ExtractedRef {
	if len(attrs) == 0 {
		return nil
	}

	var refs []ExtractedRef
	seen := make(map[string]bool)
	add := func(value string, isURL bool) {
		if value == "" {
			return
		}
		norm := NormalizePath(value)
		if seen[norm] {
			return
		}
		seen[norm] = true
		refs = append(refs, ExtractedRef{Value: norm, IsURL: isURL})
	}

	for _, k := range pathKeys {
		if v, ok := attrs[k]; ok {
			if isURLToken(v) {
				add(v, true)
			} else {
				add(v, false)
			}
		}
	}
	for _, k := range urlKeys {
		if v, ok := attrs[k]; ok {
			add(v, true)
		}
	}

	if cmd, ok := attrs["command"]; ok {
		for _, ref := range scanCommand(cmd) {
			add(ref.Value, ref.IsURL)
		}
	}
	return refs
}

// scanCommand tokenizes a shell command line and keeps tokens that look like
// paths or URLs. Flags and bare words are skipped.
func scanCommand(cmd string) []ExtractedRef {
	tokens := strings.Fields(cmd)
	if len(tokens) > maxCommandTokens {
		tokens = tokens[:maxCommandTokens]
	}

	var refs []ExtractedRef
	for i, tok := range tokens {
		tok = strings.Trim(tok, `"'`)
		switch {
		case i == 0:
			// command name, not an argument
		case strings.HasPrefix(tok, "-"):
			// flag
		case isURLToken(tok):
			refs = append(refs, ExtractedRef{Value: tok, IsURL: true})
		case looksLikePath(tok):
			refs = append(refs, ExtractedRef{Value: tok, IsURL: false})
		}
	}
	return refs
}

func isURLToken(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func looksLikePath(s string) bool {
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") ||
		strings.HasPrefix(s, "../") || strings.HasPrefix(s, "~/") {
		return true
	}
	// relative path with a directory component or a file extension
	if strings.Contains(s, "/") && !strings.Contains(s, "://") {
		return true
	}
	// bare filename with an alphabetic extension (report.pdf, notes.txt)
	if dot := strings.LastIndex(s, "."); dot > 0 && dot < len(s)-1 && !strings.ContainsAny(s, "=;|&:") {
		ext := s[dot+1:]
		if len(ext) > 7 {
			return false
		}
		for _, r := range ext {
			if r < 'a' || r > 'z' {
				return false
			}
		}
		return true
	}
	return false
}
