// Package tester sends one logical request to a candidate and a reference
// upstream and compares the shapes of their JSON replies.
package tester

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/errgroup"

	"github.com/snapp-incubator/conformer/internal/failure"
	"github.com/snapp-incubator/conformer/internal/jsonvalue"
	"github.com/snapp-incubator/conformer/internal/shape"
	"github.com/snapp-incubator/conformer/internal/transport"
)

// Upstream is one side of a comparison.
type Upstream interface {
	Name() string
	Request(ctx context.Context, method, endpoint string, body jsonvalue.Value) (*transport.Response, error)
}

// Request is a single test case after placeholder substitution.
type Request struct {
	Endpoint string
	Method   string
	Body     jsonvalue.Value
	// SkipPaths are gjson paths masked in both replies before comparing.
	SkipPaths []string
}

// Result holds both replies of a comparison. It is returned alongside shape
// mismatches so callers can report the payloads.
type Result struct {
	Candidate *transport.Response
	Reference *transport.Response
}

// Tester owns the two upstreams. It keeps no per-call state.
type Tester struct {
	candidate Upstream
	reference Upstream
}

// New returns a Tester comparing candidate against reference.
func New(candidate, reference Upstream) *Tester {
	return &Tester{candidate: candidate, reference: reference}
}

// Compare dispatches method to endpoint on both upstreams and reports the
// first structural divergence of the replies as a *failure.Error.
func (t *Tester) Compare(ctx context.Context, endpoint, method string, body jsonvalue.Value) error {
	_, err := t.Run(ctx, Request{Endpoint: endpoint, Method: method, Body: body})
	return err
}

// Run is Compare with skip paths, returning both replies.
// Result is nil when either request failed.
func (t *Tester) Run(ctx context.Context, req Request) (*Result, error) {
	var res Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := t.candidate.Request(gctx, req.Method, req.Endpoint, req.Body)
		res.Candidate = r
		return err
	})
	g.Go(func() error {
		r, err := t.reference.Request(gctx, req.Method, req.Endpoint, req.Body)
		res.Reference = r
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	client, reference := res.Candidate.Body, res.Reference.Body
	if len(req.SkipPaths) > 0 {
		c, r := maskPaths(res.Candidate.Raw, res.Reference.Raw, req.SkipPaths)
		var err error
		if client, err = reparse(res.Candidate, c); err != nil {
			return nil, failure.Transport(t.candidate.Name(), req.Method, req.Endpoint, err)
		}
		if reference, err = reparse(res.Reference, r); err != nil {
			return nil, failure.Transport(t.reference.Name(), req.Method, req.Endpoint, err)
		}
	}

	if m := shape.Compare(client, reference, req.Endpoint, jsonvalue.Path{}); m != nil {
		return &res, failure.ShapeMismatch(req.Method, m)
	}
	return &res, nil
}

// maskPaths blanks every skip path that resolves in both documents with the
// same placeholder. A path found on one side only is deleted there when its
// parent is an object, which leaves every ancestor's kind and every array's
// length intact. Paths found nowhere and gjson patterns change nothing.
func maskPaths(candidate, reference []byte, paths []string) ([]byte, []byte) {
	for _, p := range paths {
		if p == "" || strings.ContainsAny(p, "*?#|@") {
			continue
		}

		inCandidate := gjson.GetBytes(candidate, p).Exists()
		inReference := gjson.GetBytes(reference, p).Exists()
		switch {
		case inCandidate && inReference:
			candidate = setPlaceholder(candidate, p)
			reference = setPlaceholder(reference, p)
		case inCandidate:
			candidate = dropMember(candidate, p)
		case inReference:
			reference = dropMember(reference, p)
		}
	}
	return candidate, reference
}

func setPlaceholder(doc []byte, p string) []byte {
	if out, err := sjson.SetBytes(doc, p, "useless"); err == nil {
		return out
	}
	return doc
}

func dropMember(doc []byte, p string) []byte {
	parent := gjson.ParseBytes(doc)
	if i := lastSeparator(p); i >= 0 {
		parent = gjson.GetBytes(doc, p[:i])
	}
	if !parent.IsObject() {
		return doc
	}
	if out, err := sjson.DeleteBytes(doc, p); err == nil {
		return out
	}
	return doc
}

// lastSeparator is the index of the last unescaped '.' in a gjson path, or -1.
func lastSeparator(p string) int {
	for i := len(p) - 1; i > 0; i-- {
		if p[i] == '.' && p[i-1] != '\\' {
			return i
		}
	}
	return -1
}

func reparse(r *transport.Response, masked []byte) (jsonvalue.Value, error) {
	if bytes.Equal(masked, r.Raw) {
		return r.Body, nil
	}
	v, err := jsonvalue.Parse(masked)
	if err != nil {
		return nil, fmt.Errorf("masking skip paths: %w", err)
	}
	return v, nil
}
