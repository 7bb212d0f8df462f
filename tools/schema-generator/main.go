// Command schema-generator writes the configuration JSON schema to disk so
// editors can validate conductor.yml without running conductor.
package main

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/grovetools/conductor/config"
)

func main() {
	output := flag.StringP("output", "o", "schema/definitions/conductor.schema.json", "Path of the generated schema")
	flag.Parse()

	schemaBytes, err := config.GenerateSchema()
	if err != nil {
		logrus.Fatalf("Error generating schema: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		logrus.Fatalf("Error creating schema directory: %v", err)
	}
	if err := os.WriteFile(*output, append(schemaBytes, '\n'), 0o644); err != nil {
		logrus.Fatalf("Error writing schema file: %v", err)
	}

	logrus.Infof("Generated configuration schema at %s", *output)
}
