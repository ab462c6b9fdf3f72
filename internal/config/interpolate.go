package config

import (
	"os"
	"regexp"

	"github.com/koustreak/sqlgate/internal/errs"
	"go.yaml.in/yaml/v3"
)

// envRef matches ${NAME}. A bare $NAME is left alone so that passwords
// containing '$' survive.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func defaultLookup(name string) (string, bool) {
	return os.LookupEnv(name)
}

// interpolate replaces ${NAME} references in every scalar value below
// node. Mapping keys are never touched. A variable that is set to the
// empty string resolves to ""; an unset one is an error.
func interpolate(node *yaml.Node, lookup func(string) (string, bool)) error {
	switch node.Kind {
	case yaml.ScalarNode:
		out, err := expand(node.Value, lookup)
		if err != nil {
			return err
		}
		if out != node.Value {
			node.Value = out
			// The result is text, whatever the placeholder looked like.
			node.Tag = "!!str"
		}
	case yaml.MappingNode:
		for i := 1; i < len(node.Content); i += 2 {
			if err := interpolate(node.Content[i], lookup); err != nil {
				return err
			}
		}
	case yaml.SequenceNode, yaml.DocumentNode:
		for _, child := range node.Content {
			if err := interpolate(child, lookup); err != nil {
				return err
			}
		}
	}
	return nil
}

func expand(s string, lookup func(string) (string, bool)) (string, error) {
	var missing string
	out := envRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := envRef.FindStringSubmatch(ref)[1]
		val, ok := lookup(name)
		if !ok && missing == "" {
			missing = name
		}
		return val
	})
	if missing != "" {
		return "", errs.Newf(errs.ErrKindEnvVarUnresolved, "environment variable %s is not set", missing)
	}
	return out, nil
}
