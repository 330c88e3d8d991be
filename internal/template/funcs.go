package template

import (
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// FuncMap returns the functions available to path templates.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"env":   funcEnv,
		"join":  filepath.Join,
		"base":  filepath.Base,
		"dir":   filepath.Dir,
		"lower": strings.ToLower,
	}
}

// funcEnv returns the environment variable key, or def when it is unset.
func funcEnv(key string, def ...string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	if len(def) > 0 {
		return def[0]
	}
	return ""
}
