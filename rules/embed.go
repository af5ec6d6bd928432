package rules

import "embed"

//go:embed *.yaml
var embedded embed.FS

// FS returns the embedded filesystem with inalign's default injection rules.
func FS() embed.FS {
	return embedded
}
