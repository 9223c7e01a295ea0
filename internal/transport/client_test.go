package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapp-incubator/conformer/internal/failure"
	"github.com/snapp-incubator/conformer/internal/jsonvalue"
)

type recorded struct {
	method      string
	path        string
	rawQuery    string
	contentType string
	token       string
	body        string
}

func recordingServer(t *testing.T, reply string) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.rawQuery = r.URL.RawQuery
		rec.contentType = r.Header.Get("Content-Type")
		rec.token = r.Header.Get("X-Session")
		rec.body = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestRequestGetEncodesQuery(t *testing.T) {
	srv, rec := recordingServer(t, `{"quizzes":[]}`)
	c := New("reference", srv.URL+"/", WithHeaders(map[string]string{"X-Session": "abc"}))

	body := jsonvalue.Object{
		"token":  jsonvalue.String("a b"),
		"page":   jsonvalue.Number("2"),
		"active": jsonvalue.Bool(true),
		"cursor": jsonvalue.Null{},
	}
	res, err := c.Request(context.Background(), "get", "/admin/quiz/list", body)
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, rec.method)
	assert.Equal(t, "/admin/quiz/list", rec.path)
	assert.Equal(t, "active=true&page=2&token=a+b", rec.rawQuery)
	assert.Empty(t, rec.body)
	assert.Empty(t, rec.contentType)
	assert.Equal(t, "abc", rec.token)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, jsonvalue.Object{"quizzes": jsonvalue.Array{}}, res.Body)
	assert.JSONEq(t, `{"quizzes":[]}`, string(res.Raw))
}

func TestRequestPostSendsJSON(t *testing.T) {
	srv, rec := recordingServer(t, `{"token":"t"}`)
	c := New("candidate", srv.URL)

	body := jsonvalue.Object{"email": jsonvalue.String("a@b.c"), "nameFirst": jsonvalue.String("Ada")}
	_, err := c.Request(context.Background(), http.MethodPost, "admin/auth/register", body)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/admin/auth/register", rec.path)
	assert.Equal(t, "application/json", rec.contentType)
	assert.JSONEq(t, `{"email":"a@b.c","nameFirst":"Ada"}`, rec.body)
	assert.Empty(t, rec.rawQuery)
}

func TestRequestSerializationFailureIsNotSent(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := New("candidate", srv.URL)
	for _, body := range []jsonvalue.Value{
		jsonvalue.Object{"ids": jsonvalue.Array{jsonvalue.Number("1")}},
		jsonvalue.Object{"filter": jsonvalue.Object{}},
		jsonvalue.Array{},
		jsonvalue.String("token"),
	} {
		_, err := c.Request(context.Background(), http.MethodDelete, "/admin/quiz/trash/empty", body)
		require.Error(t, err)
		assert.Equal(t, failure.KindSerialization, failure.KindOf(err), "body %s", jsonvalue.Encode(body))
	}
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestRequestMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>bad gateway</html>")
	}))
	defer srv.Close()

	_, err := New("reference", srv.URL).Request(context.Background(), http.MethodGet, "/", nil)
	require.Error(t, err)
	assert.Equal(t, failure.KindTransport, failure.KindOf(err))
	assert.ErrorIs(t, err, jsonvalue.ErrInvalidJSON)
	assert.Contains(t, err.Error(), "status 502")
}

func TestRequestDoesNotJudgeStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"invalid token"}`)
	}))
	defer srv.Close()

	res, err := New("reference", srv.URL).Request(context.Background(), http.MethodPut, "/admin/quiz/1/name", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, jsonvalue.Object{"error": jsonvalue.String("invalid token")}, res.Body)
}

func TestRequestConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	_, err = New("candidate", "http://"+addr).Request(context.Background(), http.MethodGet, "/clear", nil)
	require.Error(t, err)
	assert.Equal(t, failure.KindTransport, failure.KindOf(err))
	assert.Contains(t, err.Error(), "(candidate)")
}

func TestRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := New("reference", srv.URL, WithTimeout(50*time.Millisecond)).
		Request(context.Background(), http.MethodGet, "/slow", nil)
	require.Error(t, err)
	assert.Equal(t, failure.KindTransport, failure.KindOf(err))
}

func TestURL(t *testing.T) {
	c := New("reference", "http://localhost:3000///")
	assert.Equal(t, "http://localhost:3000/admin/quiz", c.URL("/admin/quiz"))
	assert.Equal(t, "http://localhost:3000/admin/quiz", c.URL("admin/quiz"))
	assert.Equal(t, "http://localhost:3000/", c.URL(""))
}

func TestEncodeQuery(t *testing.T) {
	q, err := EncodeQuery(jsonvalue.Object{})
	require.NoError(t, err)
	assert.Empty(t, q)

	q, err = EncodeQuery(jsonvalue.Object{"quizId": jsonvalue.Number("5"), "name": jsonvalue.String("x&y")})
	require.NoError(t, err)
	assert.Equal(t, "name=x%26y&quizId=5", q)
}
