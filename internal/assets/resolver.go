package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// RefPrefix is the path every asset reference starts with. The uploads
// handler serves references under the same prefix.
const RefPrefix = "/uploads/"

var (
	ErrAssetExists   = errors.New("asset already exists")
	ErrAssetNotFound = errors.New("asset not found")
	ErrInvalidRef    = errors.New("invalid asset reference")
	ErrEmptyPayload  = errors.New("empty image payload")
)

var extPattern = regexp.MustCompile(`^\.[A-Za-z0-9]{1,10}$`)

// StorageWriteError reports an asset that could not be written. No
// reference exists for it.
type StorageWriteError struct {
	Name string
	Err  error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("store image %q: %v", e.Name, e.Err)
}

func (e *StorageWriteError) Unwrap() error {
	return e.Err
}

// Sink is the binary store behind the resolver. Create must fail with
// ErrAssetExists instead of replacing an existing object and must not leave
// a partial object behind on error.
type Sink interface {
	Create(ctx context.Context, name string, r io.Reader) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

type Resolver struct {
	sink    Sink
	newName func() string
}

func NewResolver(sink Sink) *Resolver {
	return &Resolver{
		sink:    sink,
		newName: uuid.NewString,
	}
}

// Resolve stores payload under a fresh name that keeps the extension of
// originalName and returns the reference to persist.
func (r *Resolver) Resolve(ctx context.Context, payload []byte, originalName string) (string, error) {
	name := r.newName() + extension(originalName)

	if len(payload) == 0 {
		return "", &StorageWriteError{Name: name, Err: ErrEmptyPayload}
	}

	if err := r.sink.Create(ctx, name, bytes.NewReader(payload)); err != nil {
		return "", &StorageWriteError{Name: name, Err: err}
	}

	return RefPrefix + name, nil
}

// Open returns the payload behind a reference produced by Resolve.
func (r *Resolver) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	name, err := NameFromRef(ref)
	if err != nil {
		return nil, err
	}
	return r.sink.Open(ctx, name)
}

// NameFromRef extracts the stored object name from a reference.
func NameFromRef(ref string) (string, error) {
	name, ok := strings.CutPrefix(ref, RefPrefix)
	if !ok || name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return name, nil
}

func extension(originalName string) string {
	ext := path.Ext(strings.ReplaceAll(originalName, `\`, "/"))
	if !extPattern.MatchString(ext) {
		return ""
	}
	return ext
}
