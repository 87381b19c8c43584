package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"git.home.luguber.info/inful/metadeploy/internal/metadata"
)

// ClassifyCmd implements the 'classify' command. It needs no configuration.
type ClassifyCmd struct {
	Paths []string `arg:"" name:"path" help:"Repository paths to classify"`
	JSON  bool     `name:"json" help:"Print one JSON object per path"`
}

type classification struct {
	Path         string `json:"path"`
	Valid        bool   `json:"valid"`
	Type         string `json:"type"`
	Container    string `json:"container"`
	Member       string `json:"member"`
	Destructible bool   `json:"destructible"`
	Companion    bool   `json:"requires_companion"`
}

func (c *ClassifyCmd) Run(_ *Global, _ *CLI) error {
	table, err := metadata.LoadTable()
	if err != nil {
		return err
	}
	return classifyPaths(os.Stdout, metadata.NewClassifier(table), c.Paths, c.JSON)
}

func classifyPaths(w io.Writer, classifier *metadata.Classifier, paths []string, asJSON bool) error {
	enc := json.NewEncoder(w)
	for _, item := range classifier.ClassifyAll(paths) {
		if asJSON {
			if err := enc.Encode(classification{
				Path:         item.Path,
				Valid:        item.Valid,
				Type:         item.Type,
				Container:    item.Container,
				Member:       item.Member,
				Destructible: item.Destructible,
				Companion:    item.RequiresCompanion,
			}); err != nil {
				return fmt.Errorf("encode %s: %w", item.Path, err)
			}
			continue
		}
		switch {
		case item.IsCompanion():
			fmt.Fprintf(w, "%s\tcompanion of %s\n", item.Path, metadata.OwnerPath(item.Path))
		case !item.Valid:
			fmt.Fprintf(w, "%s\t%s\n", item.Path, item.Type)
		default:
			fmt.Fprintf(w, "%s\t%s\t%s/%s\tdestructible=%t companion=%t\n",
				item.Path, item.Type, item.Container, item.FullName(), item.Destructible, item.RequiresCompanion)
		}
	}
	return nil
}
