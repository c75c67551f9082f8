package mongo

import (
	"time"

	"github.com/marmos91/storagecloud/pkg/store/metadata"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type sessionDoc struct {
	Token    []byte    `bson:"token"`
	IssuedAt time.Time `bson:"issued_at"`
}

type warningDoc struct {
	Body      string    `bson:"body"`
	CreatedAt time.Time `bson:"created_at"`
}

type accountDoc struct {
	ID         primitive.ObjectID `bson:"_id"`
	Username   string             `bson:"username"`
	Name       string             `bson:"name"`
	Surname    string             `bson:"surname"`
	Role       int                `bson:"role"`
	HomeDir    string             `bson:"home_dir"`
	TotalSpace int64              `bson:"total_space"`
	FreeSpace  int64              `bson:"free_space"`
	Password   []byte             `bson:"password"`
	Sessions   []sessionDoc       `bson:"sessions"`
	Warnings   []warningDoc       `bson:"warnings"`
	CreatedAt  time.Time          `bson:"created_at"`
}

type fileDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	Owner       string             `bson:"owner"`
	Filename    string             `bson:"filename"`
	Kind        int                `bson:"kind"`
	Size        int64              `bson:"size"`
	LastValid   int64              `bson:"last_valid"`
	IsValid     bool               `bson:"is_valid"`
	Hash        []byte             `bson:"hash"`
	CreatedAt   time.Time          `bson:"created_at"`
	LastChunkAt time.Time          `bson:"last_chunk_at"`
	SharedWith  []string           `bson:"shared_with"`
}

func toAccountDoc(a *metadata.Account, id primitive.ObjectID) accountDoc {
	doc := accountDoc{
		ID:         id,
		Username:   a.Username,
		Name:       a.Name,
		Surname:    a.Surname,
		Role:       int(a.Role),
		HomeDir:    a.HomeDir,
		TotalSpace: int64(a.TotalSpace),
		FreeSpace:  int64(a.FreeSpace),
		Password:   a.PasswordHash,
		Sessions:   []sessionDoc{},
		Warnings:   []warningDoc{},
		CreatedAt:  a.CreatedAt,
	}
	for _, s := range a.Sessions {
		doc.Sessions = append(doc.Sessions, sessionDoc{Token: s.Token, IssuedAt: s.IssuedAt})
	}
	for _, w := range a.Warnings {
		doc.Warnings = append(doc.Warnings, warningDoc{Body: w.Body, CreatedAt: w.CreatedAt})
	}
	return doc
}

func (d *accountDoc) toAccount() *metadata.Account {
	a := &metadata.Account{
		ID:           metadata.AccountID(d.ID.Hex()),
		Username:     d.Username,
		Name:         d.Name,
		Surname:      d.Surname,
		Role:         metadata.Role(d.Role),
		HomeDir:      d.HomeDir,
		TotalSpace:   uint64(d.TotalSpace),
		FreeSpace:    uint64(d.FreeSpace),
		PasswordHash: d.Password,
		CreatedAt:    d.CreatedAt,
	}
	for _, s := range d.Sessions {
		a.Sessions = append(a.Sessions, metadata.SessionToken{Token: s.Token, IssuedAt: s.IssuedAt})
	}
	a.Warnings = toWarnings(d.Warnings)
	return a
}

func toWarnings(docs []warningDoc) []metadata.Warning {
	var out []metadata.Warning
	for _, w := range docs {
		out = append(out, metadata.Warning{Body: w.Body, CreatedAt: w.CreatedAt})
	}
	return out
}

func toFileDoc(f *metadata.FileEntry, id primitive.ObjectID) fileDoc {
	doc := fileDoc{
		ID:          id,
		Owner:       string(f.Owner),
		Filename:    f.Filename,
		Kind:        int(f.Kind),
		Size:        int64(f.Size),
		LastValid:   int64(f.LastValid),
		IsValid:     f.IsValid,
		Hash:        f.Hash,
		CreatedAt:   f.CreatedAt,
		LastChunkAt: f.LastChunkAt,
		SharedWith:  []string{},
	}
	for _, g := range f.SharedWith {
		doc.SharedWith = append(doc.SharedWith, string(g))
	}
	return doc
}

func (d *fileDoc) toFile() *metadata.FileEntry {
	f := &metadata.FileEntry{
		ID:          metadata.FileID(d.ID.Hex()),
		Owner:       metadata.AccountID(d.Owner),
		Filename:    d.Filename,
		Kind:        metadata.FileKind(d.Kind),
		Size:        uint64(d.Size),
		LastValid:   uint64(d.LastValid),
		IsValid:     d.IsValid,
		Hash:        d.Hash,
		CreatedAt:   d.CreatedAt,
		LastChunkAt: d.LastChunkAt,
	}
	for _, g := range d.SharedWith {
		f.SharedWith = append(f.SharedWith, metadata.AccountID(g))
	}
	return f
}
