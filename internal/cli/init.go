package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const exampleConfig = `server:
  host: localhost
  port: 8090

database:
  wal_mode: true

store:
  base_dir: data
  schema_dir: schemas

auth:
  jwt:
    secret: ${SYNCSTORE_JWT_SECRET}

logging:
  level: info
  format: console
`

// Example schema tree: a repo with posts, posts with comments. Shows the
// unique, parent-reference, and inspect extensions in one namespace.
var exampleSchemas = map[string]string{
	"blog/repo.json": `{
	"type": "object",
	"properties": {
		"name": { "type": "string", "minLength": 1 },
		"description": { "type": "string" }
	},
	"required": ["name"],
	"x-unique": "name"
}
`,
	"blog/post.json": `{
	"type": "object",
	"properties": {
		"repo_id": { "type": "string" },
		"title": { "type": "string", "minLength": 1 },
		"content": { "type": "string" },
		"author": { "type": "string" }
	},
	"required": ["repo_id", "title"],
	"x-parent-id": { "parent": "repo", "field": "repo_id" },
	"x-inspect": "author"
}
`,
	"blog/comment.json": `{
	"type": "object",
	"properties": {
		"post_id": { "type": "string" },
		"content": { "type": "string", "minLength": 1 }
	},
	"required": ["post_id", "content"],
	"x-parent-id": { "parent": "post", "field": "post_id" }
}
`,
}

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Scaffold a syncstore project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}

		cfgPath := filepath.Join(dir, "syncstore.yaml")
		if _, err := os.Stat(cfgPath); err == nil {
			return fmt.Errorf("%s already exists", cfgPath)
		}

		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(cfgPath, []byte(exampleConfig), 0o644); err != nil {
			return err
		}

		for rel, content := range exampleSchemas {
			path := filepath.Join(dir, "schemas", rel)
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return err
			}
		}

		fmt.Printf("Initialized syncstore project in %s\n", dir)
		fmt.Println("Set SYNCSTORE_JWT_SECRET and run: syncstore serve")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
