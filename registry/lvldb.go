package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/elastos/Elastos.ELA.CrossBorrow/domain"
)

// used to compute the size of bloom filter bits array.
const bitsPerKey = 10

// prefix of deployment records in level db
var deploymentPrefix = []byte("deployment/")

// LevelDB keeps deployment records keyed by project/tag/chain/name@address.
type LevelDB struct {
	ldb *leveldb.DB
}

// NewLevelDB opens (or creates) the registry database at path.
func NewLevelDB(path string) (*LevelDB, error) {
	o := opt.Options{
		NoSync: false,
		Filter: filter.NewBloomFilter(bitsPerKey),
	}
	ldb, err := leveldb.OpenFile(path, &o)
	if err != nil {
		return nil, errors.Wrapf(err, "open registry %s", path)
	}
	return &LevelDB{ldb: ldb}, nil
}

// NewMemLevelDB backs the registry with in-memory storage.
func NewMemLevelDB() (*LevelDB, error) {
	ldb, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{ldb: ldb}, nil
}

func (l *LevelDB) Close() error {
	return l.ldb.Close()
}

func scopeKey(project, tag string, chainID uint64) []byte {
	var key bytes.Buffer
	key.Write(deploymentPrefix)
	key.WriteString(project)
	key.WriteByte('/')
	key.WriteString(tag)
	key.WriteByte('/')
	key.WriteString(strconv.FormatUint(chainID, 10))
	key.WriteByte('/')
	return key.Bytes()
}

// recordKey keeps same-name deployments at different addresses apart, so a
// lookup still sees every candidate.
func recordKey(d domain.Deployment) []byte {
	key := append(scopeKey(d.Project, d.Tag, d.ChainID), []byte(d.Name)...)
	key = append(key, '@')
	return append(key, d.Address.Bytes()...)
}

type storedDeployment struct {
	domain.Deployment
	Project string `json:"project"`
	Tag     string `json:"tag"`
	ChainID uint64 `json:"chainId"`
}

func encode(d domain.Deployment) ([]byte, error) {
	return json.Marshal(storedDeployment{Deployment: d, Project: d.Project, Tag: d.Tag, ChainID: d.ChainID})
}

func decode(data []byte) (domain.Deployment, error) {
	var s storedDeployment
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.Deployment{}, err
	}
	d := s.Deployment
	d.Project, d.Tag, d.ChainID = s.Project, s.Tag, s.ChainID
	return d, nil
}

// Put stores or replaces one record.
func (l *LevelDB) Put(d domain.Deployment) error {
	data, err := encode(d)
	if err != nil {
		return err
	}
	return l.ldb.Put(recordKey(d), data, nil)
}

// Import copies every record of src in a single batch and returns the count.
func (l *LevelDB) Import(src *JSONFile) (int, error) {
	all, err := src.All()
	if err != nil {
		return 0, err
	}
	batch := new(leveldb.Batch)
	for _, d := range all {
		data, err := encode(d)
		if err != nil {
			return 0, err
		}
		batch.Put(recordKey(d), data)
	}
	if err := l.ldb.Write(batch, nil); err != nil {
		return 0, errors.Wrap(err, "write registry batch")
	}
	return len(all), nil
}

func (l *LevelDB) Lookup(ctx context.Context, tag string, chainID uint64, project string) ([]domain.Deployment, error) {
	iter := l.ldb.NewIterator(util.BytesPrefix(scopeKey(project, tag, chainID)), nil)
	defer iter.Release()

	var out []domain.Deployment
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := decode(iter.Value())
		if err != nil {
			return nil, errors.Wrapf(err, "decode record %s", iter.Key())
		}
		out = append(out, d)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return out, nil
}
