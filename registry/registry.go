// Package registry reads deployment records: which contract lives at which
// address for a release tag, chain and project.
package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	mapset "github.com/deckarep/golang-set"
	"github.com/pkg/errors"

	"github.com/elastos/Elastos.ELA.CrossBorrow/domain"
)

// Registry is the read-only deployment registry.
type Registry interface {
	Lookup(ctx context.Context, tag string, chainID uint64, project string) ([]domain.Deployment, error)
}

// document is the deployment file layout: project -> tag -> chain id -> records.
type document map[string]map[string]map[string][]domain.Deployment

// JSONFile serves lookups from a deployments JSON file, loaded once.
type JSONFile struct {
	path string

	once sync.Once
	doc  document
	err  error
}

func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

func (f *JSONFile) load() {
	raw, err := os.ReadFile(filepath.Clean(f.path))
	if err != nil {
		f.err = errors.Wrap(err, "read deployments")
		return
	}
	doc := make(document)
	if err := json.Unmarshal(raw, &doc); err != nil {
		f.err = errors.Wrapf(err, "decode deployments %s", f.path)
		return
	}
	f.doc = doc
}

func (f *JSONFile) Lookup(ctx context.Context, tag string, chainID uint64, project string) ([]domain.Deployment, error) {
	f.once.Do(f.load)
	if f.err != nil {
		return nil, f.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records := f.doc[project][tag][strconv.FormatUint(chainID, 10)]
	return dedupe(stamp(records, project, tag, chainID)), nil
}

// All flattens the file, ordered by project, tag, chain and name.
func (f *JSONFile) All() ([]domain.Deployment, error) {
	f.once.Do(f.load)
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Deployment
	for project, tags := range f.doc {
		for tag, chains := range tags {
			for chain, records := range chains {
				id, err := strconv.ParseUint(chain, 10, 64)
				if err != nil {
					return nil, errors.Wrapf(err, "chain key %q in %s/%s", chain, project, tag)
				}
				out = append(out, dedupe(stamp(records, project, tag, id))...)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Project != b.Project {
			return a.Project < b.Project
		}
		if a.Tag != b.Tag {
			return a.Tag < b.Tag
		}
		if a.ChainID != b.ChainID {
			return a.ChainID < b.ChainID
		}
		return a.Name < b.Name
	})
	return out, nil
}

func stamp(records []domain.Deployment, project, tag string, chainID uint64) []domain.Deployment {
	out := make([]domain.Deployment, len(records))
	for i, r := range records {
		r.Project, r.Tag, r.ChainID = project, tag, chainID
		out[i] = r
	}
	return out
}

// dedupe drops repeated (name, address) records, keeping the first.
func dedupe(records []domain.Deployment) []domain.Deployment {
	seen := mapset.NewThreadUnsafeSet()
	out := records[:0]
	for _, r := range records {
		key := r.Name + "@" + r.Address.Hex()
		if !seen.Add(key) {
			continue
		}
		out = append(out, r)
	}
	return out
}
