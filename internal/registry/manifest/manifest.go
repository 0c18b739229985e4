// Package manifest parses info.json documents and normalizes them across the
// two manifest generations in the wild.
//
// Generation 2 manifests use upper-case keys (AUTHOR, SHORT, ...);
// generation 3 manifests already use the canonical shape. The generation is
// decided once per repository from the root manifest and applied to every
// cog manifest in the same pass.
package manifest

import (
	"encoding/json"
	"fmt"
)

// Generation is a manifest schema generation.
type Generation int

// Known manifest generations.
const (
	V2 Generation = 2
	V3 Generation = 3
)

// String returns the generation as stored on records ("2" or "3").
func (g Generation) String() string {
	return fmt.Sprintf("%d", int(g))
}

// RepoFields is the canonical shape of a repository manifest.
type RepoFields struct {
	Author      Author   `json:"author"`
	Short       string   `json:"short"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// CogFields is the canonical shape of a cog manifest.
type CogFields struct {
	Author        Author            `json:"author"`
	Short         string            `json:"short"`
	Description   string            `json:"description"`
	Tags          []string          `json:"tags"`
	Hidden        bool              `json:"hidden"`
	BotVersion    []int             `json:"bot_version"`
	PythonVersion []int             `json:"python_version"`
	RequiredCogs  map[string]string `json:"required_cogs"`
}

// Author is the author block of a canonical manifest.
type Author struct {
	Name string `json:"name"`
}

type v2Repo struct {
	Author      string   `json:"AUTHOR"`
	Short       string   `json:"SHORT"`
	Description string   `json:"DESCRIPTION"`
	Tags        []string `json:"TAGS"`
}

type v2Cog struct {
	v2Repo
	Hidden bool `json:"HIDDEN"`
}

// Detect reports which generation a repository manifest uses: V2 when the
// document carries a top-level AUTHOR key, V3 otherwise. The error is the
// JSON parse error, if any.
func Detect(raw []byte) (Generation, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return V2, err
	}
	if _, ok := doc["AUTHOR"]; ok {
		return V2, nil
	}
	return V3, nil
}

// MapRepo normalizes a repository manifest to its canonical fields.
func MapRepo(gen Generation, raw []byte) (RepoFields, error) {
	if gen == V2 {
		var doc v2Repo
		if err := json.Unmarshal(raw, &doc); err != nil {
			return RepoFields{}, err
		}
		return RepoFields{
			Author:      Author{Name: doc.Author},
			Short:       doc.Short,
			Description: doc.Description,
			Tags:        orEmpty(doc.Tags),
		}, nil
	}

	var fields RepoFields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return RepoFields{}, err
	}
	fields.Tags = orEmpty(fields.Tags)
	return fields, nil
}

// MapCog normalizes a cog manifest to its canonical fields and fills the
// generation-specific version defaults.
func MapCog(gen Generation, raw []byte) (CogFields, error) {
	var fields CogFields
	if gen == V2 {
		var doc v2Cog
		if err := json.Unmarshal(raw, &doc); err != nil {
			return CogFields{}, err
		}
		fields = CogFields{
			Author:      Author{Name: doc.Author},
			Short:       doc.Short,
			Description: doc.Description,
			Tags:        doc.Tags,
			Hidden:      doc.Hidden,
		}
	} else if err := json.Unmarshal(raw, &fields); err != nil {
		return CogFields{}, err
	}

	fields.Tags = orEmpty(fields.Tags)
	if len(fields.BotVersion) == 0 {
		fields.BotVersion = defaultBotVersion(gen)
	}
	if len(fields.PythonVersion) == 0 {
		fields.PythonVersion = defaultPythonVersion(gen)
	}
	if fields.RequiredCogs == nil {
		fields.RequiredCogs = map[string]string{}
	}
	return fields, nil
}

func defaultBotVersion(gen Generation) []int {
	if gen == V3 {
		return []int{3, 0, 0}
	}
	return []int{2, 0, 0}
}

func defaultPythonVersion(gen Generation) []int {
	if gen == V3 {
		return []int{3, 6, 4}
	}
	return []int{3, 5, 0}
}

func orEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
