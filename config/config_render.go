package config

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/hopnetwork/reconciler/log"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/valyala/fasttemplate"
)

const (
	startTag = "{{"
	endTag   = "}}"

	// quoteMark tags vars that were quoted only to survive the TOML parser,
	// so the quotes can be stripped again after substitution.
	quoteMark = ":q"
)

var (
	ErrMissingVars = fmt.Errorf("missing vars")
	ErrCycleVars   = fmt.Errorf("cycle vars")

	unquotedVarRE = regexp.MustCompile(`=\s*\{\{([^}:]+)\}\}`)
	quotedVarRE   = regexp.MustCompile(`"\{\{([^}:]+):q\}\}"`)
	markedVarRE   = regexp.MustCompile(`\{\{([^}:]+):q\}\}`)
	anyVarRE      = regexp.MustCompile(`\{\{[^}]+\}\}`)
)

// FileData is a config file already read into memory.
type FileData struct {
	Name    string
	Content string
}

// ConfigRender merges config files, later ones overriding earlier ones, and
// resolves the {{var}} indirections of the result. A var resolves against
// the environment first (prefixed, dots become underscores) and against the
// merged config itself second.
type ConfigRender struct {
	FilesData []FileData
	// LookupEnvFunc resolves environment variables, typically os.LookupEnv
	LookupEnvFunc func(key string) (string, bool)
	EnvPrefix     string
}

func NewConfigRender(filesData []FileData, envPrefix string) *ConfigRender {
	return &ConfigRender{
		FilesData:     filesData,
		LookupEnvFunc: os.LookupEnv,
		EnvPrefix:     envPrefix,
	}
}

// Render merges the files and resolves all vars.
func (c *ConfigRender) Render() (string, error) {
	merged, err := c.Merge()
	if err != nil {
		return "", err
	}
	return c.ResolveVars(merged)
}

// Merge loads every file into the same koanf tree and marshals the result
// back to TOML. Files with a .json extension are parsed as JSON, everything
// else as TOML. Unquoted vars (A={{B}}) are quoted before TOML parsing so
// that the parser accepts them, and unquoted again afterwards. JSON values
// are already quoted, so they need no marking.
func (c *ConfigRender) Merge() (string, error) {
	k := koanf.New(".")
	for _, data := range c.FilesData {
		var err error
		if fileExtension(data.Name) == "json" {
			err = k.Load(rawbytes.Provider([]byte(data.Content)), json.Parser())
		} else {
			err = k.Load(rawbytes.Provider([]byte(quoteVars(data.Content))), toml.Parser())
		}
		if err != nil {
			log.Errorf("error loading config file %s: %v", data.Name, err)
			return "", fmt.Errorf("cannot parse %s: %w", data.Name, err)
		}
	}
	marshaled, err := k.Marshal(toml.Parser())
	if err != nil {
		return "", fmt.Errorf("cannot marshal merged config: %w", err)
	}
	return unquoteVars(string(marshaled)), nil
}

// ResolveVars substitutes vars until none are left. Each pass must reduce
// the number of pending vars: a var defined nowhere is ErrMissingVars, vars
// that only reference each other are ErrCycleVars.
func (c *ConfigRender) ResolveVars(data string) (string, error) {
	pendingBefore := -1
	for {
		rendered, missing, err := c.resolvePass(data)
		if err != nil {
			return "", err
		}
		pending := anyVarRE.FindAllString(rendered, -1)
		if len(pending) == 0 {
			return rendered, nil
		}
		if len(pending) == pendingBefore {
			if len(missing) > 0 {
				return rendered, fmt.Errorf("%w: %v", ErrMissingVars, missing)
			}
			return rendered, fmt.Errorf("%w: %v", ErrCycleVars, pending)
		}
		pendingBefore = len(pending)
		data = rendered
	}
}

// resolvePass runs one template pass over data, substituting the vars that
// resolve and keeping the template form for the ones that do not.
func (c *ConfigRender) resolvePass(data string) (string, []string, error) {
	tpl, err := fasttemplate.NewTemplate(data, startTag, endTag)
	if err != nil {
		return "", nil, fmt.Errorf("cannot parse config template: %w", err)
	}
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider([]byte(quoteVars(data))), toml.Parser()); err != nil {
		return "", nil, fmt.Errorf("cannot parse config as TOML: %w", err)
	}
	values := k.All()

	var missing []string
	rendered := tpl.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		if v, ok := c.lookupEnv(tag); ok {
			return w.Write([]byte(v))
		}
		if v, ok := values[tag]; ok {
			return w.Write([]byte(fmt.Sprintf("%v", v)))
		}
		if !contains(missing, tag) {
			missing = append(missing, tag)
		}
		return w.Write([]byte(startTag + tag + endTag))
	})
	return stripMarks(rendered), missing, nil
}

func (c *ConfigRender) lookupEnv(tag string) (string, bool) {
	key := c.EnvPrefix + "_" + strings.ReplaceAll(tag, ".", "_")
	return c.LookupEnvFunc(key)
}

func quoteVars(data string) string {
	return unquotedVarRE.ReplaceAllString(data, `= "{{${1}`+quoteMark+`}}"`)
}

func unquoteVars(data string) string {
	return quotedVarRE.ReplaceAllString(data, `{{${1}}}`)
}

// stripMarks removes the quote marks that leaked into substituted values.
func stripMarks(data string) string {
	return markedVarRE.ReplaceAllString(data, `{{${1}}}`)
}

func contains(list []string, search string) bool {
	for _, v := range list {
		if v == search {
			return true
		}
	}
	return false
}

func readFileToString(filename string) (string, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return "", err
	}
	return string(content), nil
}
