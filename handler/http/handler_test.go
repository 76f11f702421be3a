package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpHdlr "rankguard/handler/http"
	"rankguard/src/groupservice"
	jobctrl "rankguard/src/infrastructure/job"
	"rankguard/src/rankguard"
	"rankguard/src/storage/resultstore"
)

const testKey = "s3cret"

// fakeGroupService reports progress and then waits for release, if set.
type fakeGroupService struct {
	progress int
	release  chan struct{}
	err      error
	calls    atomic.Int32

	mu   sync.Mutex
	last groupservice.SetRankRequest
}

func (f *fakeGroupService) SetRank(ctx context.Context, req groupservice.SetRankRequest) (*groupservice.Role, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()

	if f.progress > 0 {
		req.Report(f.progress)
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return &groupservice.Role{ID: 9, Name: "Member", Rank: req.Rank}, nil
}

type testServer struct {
	engine  *gin.Engine
	store   *resultstore.LocalStore
	service *fakeGroupService
}

func newTestServer(t *testing.T, fake *fakeGroupService, seed map[string]string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	store, err := resultstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	// Seeded entries are written as raw files, like results left by an
	// earlier run.
	for id, body := range seed {
		require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), id), []byte(body), 0644))
	}

	registry := jobctrl.NewRegistry(store)
	_, err = registry.Recover(ctx)
	require.NoError(t, err)

	logger := watermill.NopLogger{}
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, logger)
	jobService := jobctrl.NewJobService(pubSub, registry, logger)
	router, err := jobctrl.NewRouter(pubSub, jobService, logger)
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		_ = router.Run(runCtx)
	}()
	<-router.Running()
	t.Cleanup(func() {
		if fake.release != nil {
			select {
			case <-fake.release:
			default:
				close(fake.release)
			}
		}
		cancel()
		_ = router.Close()
		_ = pubSub.Close()
		jobService.Wait()
	})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	guard := rankguard.New(fake, rankguard.DefaultCeiling)
	h := httpHdlr.NewHandler(jobService, guard, node, testKey)
	return &testServer{
		engine:  httpHdlr.NewEngine(h),
		store:   store,
		service: fake,
	}
}

func (s *testServer) do(method, target string, body interface{}) *httptest.ResponseRecorder {
	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, target, nil)
	case url.Values:
		req = httptest.NewRequest(method, target, strings.NewReader(b.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	default:
		raw, _ := json.Marshal(b)
		req = httptest.NewRequest(method, target, strings.NewReader(string(raw)))
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeGroupService{}, map[string]string{"1": `{"success":true}`})

	w := s.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"error":null,"data":{"status":"ok","inProgress":0,"completed":1,"rankLimit":255}}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAuthenticationRunsFirst(t *testing.T) {
	s := newTestServer(t, &fakeGroupService{}, nil)

	tests := []struct {
		name string
		body interface{}
	}{
		{"no key", map[string]interface{}{"group": 1, "target": 2, "rank": 3}},
		{"wrong key with bad parameters", map[string]interface{}{"key": "nope", "rank": "high"}},
		{"wrong key with excessive rank", map[string]interface{}{"key": "nope", "group": 1, "target": 2, "rank": 300}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/v1/rank", tt.body)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.JSONEq(t, `{"error":"Invalid key","data":null}`, w.Body.String())
		})
	}
	assert.Zero(t, s.service.calls.Load())
}

func TestKeyFromHeaderOrQuery(t *testing.T) {
	s := newTestServer(t, &fakeGroupService{}, map[string]string{"5": `{"success":true}`})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/5", nil)
	req.Header.Set("X-Api-Key", testKey)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/v1/jobs/5?key="+testKey, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetRankValidation(t *testing.T) {
	s := newTestServer(t, &fakeGroupService{}, nil)

	tests := []struct {
		name    string
		body    interface{}
		status  int
		message string
	}{
		{
			name:    "missing target",
			body:    map[string]interface{}{"key": testKey, "group": 1, "rank": 3},
			status:  http.StatusBadRequest,
			message: `Parameter "target" is required.`,
		},
		{
			name:    "rank not an integer",
			body:    map[string]interface{}{"key": testKey, "group": 1, "target": 2, "rank": "high"},
			status:  http.StatusBadRequest,
			message: `Parameter "rank" is not the correct data type, expected int.`,
		},
		{
			name:    "id not safe",
			body:    map[string]interface{}{"key": testKey, "group": 1, "target": 2, "rank": 3, "id": "a/b"},
			status:  http.StatusBadRequest,
			message: `Parameter "id" is not the correct data type, expected safe_string.`,
		},
		{
			name:    "id longer than the store can key",
			body:    map[string]interface{}{"key": testKey, "group": 1, "target": 2, "rank": 3, "id": strings.Repeat("a", 129)},
			status:  http.StatusBadRequest,
			message: "Job id must be 1 to 128 letters, digits, '-' or '_'",
		},
		{
			name:    "rank above limit",
			body:    map[string]interface{}{"key": testKey, "group": 1, "target": 2, "rank": 300},
			status:  http.StatusUnprocessableEntity,
			message: "New rank 300 is above rank limit 255",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/v1/rank", tt.body)
			assert.Equal(t, tt.status, w.Code)

			var got struct {
				Error *string     `json:"error"`
				Data  interface{} `json:"data"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			require.NotNil(t, got.Error)
			assert.Equal(t, tt.message, *got.Error)
			assert.Nil(t, got.Data)
		})
	}
	assert.Zero(t, s.service.calls.Load())
}

func TestSetRankLongIDNeverReachesGroupService(t *testing.T) {
	s := newTestServer(t, &fakeGroupService{}, nil)
	id := strings.Repeat("a", 129)

	body := map[string]interface{}{"key": testKey, "group": 1, "target": 2, "rank": 3, "id": id}
	for i := 0; i < 2; i++ {
		w := s.do(http.MethodPost, "/api/v1/rank", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}

	assert.Never(t, func() bool {
		return s.service.calls.Load() > 0
	}, 200*time.Millisecond, 10*time.Millisecond)

	w := s.do(http.MethodGet, "/api/v1/jobs/"+id+"?key="+testKey, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetRankLifecycle(t *testing.T) {
	fake := &fakeGroupService{progress: 40, release: make(chan struct{})}
	s := newTestServer(t, fake, nil)

	body := map[string]interface{}{"key": testKey, "group": 1, "target": 2, "rank": 10, "id": "77"}
	w := s.do(http.MethodPost, "/api/v1/rank", body)
	require.Equal(t, http.StatusAccepted, w.Code)

	var accepted struct {
		Error *string `json:"error"`
		Data  struct {
			ID       string `json:"id"`
			Complete bool   `json:"complete"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	assert.Nil(t, accepted.Error)
	assert.Equal(t, "77", accepted.Data.ID)
	assert.False(t, accepted.Data.Complete)

	require.Eventually(t, func() bool {
		w := s.do(http.MethodGet, "/api/v1/jobs/77?key="+testKey, nil)
		return w.Code == http.StatusOK && w.Body.String() == `{"error":null,"data":{"progress":40,"complete":false}}`
	}, 5*time.Second, 10*time.Millisecond)

	// A second submission joins the running job.
	w = s.do(http.MethodPost, "/api/v1/rank", body)
	assert.Equal(t, http.StatusAccepted, w.Code)

	close(fake.release)

	want := `{"error":null,"data":{"progress":100,"complete":true,"success":true,"group":1,"target":2,"newRole":{"id":9,"name":"Member","rank":10}}}`
	require.Eventually(t, func() bool {
		w := s.do(http.MethodPost, "/api/v1/jobs/77", map[string]interface{}{"key": testKey})
		return w.Code == http.StatusOK && w.Body.String() == want
	}, 5*time.Second, 10*time.Millisecond)

	// Submitting a completed id answers with the stored result.
	w = s.do(http.MethodPost, "/api/v1/rank", body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, want, w.Body.String())

	assert.Equal(t, int32(1), fake.calls.Load())
	fake.mu.Lock()
	assert.Equal(t, int64(1), fake.last.GroupID)
	assert.Equal(t, int64(2), fake.last.UserID)
	fake.mu.Unlock()
}

func TestSetRankFormBodyAndGeneratedID(t *testing.T) {
	s := newTestServer(t, &fakeGroupService{}, nil)

	form := url.Values{}
	form.Set("key", testKey)
	form.Set("group", "1")
	form.Set("target", "2")
	form.Set("rank", "3")

	w := s.do(http.MethodPost, "/api/v1/rank", form)
	require.Equal(t, http.StatusAccepted, w.Code)

	var accepted struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.Data.ID)

	require.Eventually(t, func() bool {
		w := s.do(http.MethodGet, "/api/v1/jobs/"+accepted.Data.ID+"?key="+testKey, nil)
		return w.Code == http.StatusOK && strings.Contains(w.Body.String(), `"complete":true`)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSetRankGroupServiceRefusal(t *testing.T) {
	fake := &fakeGroupService{err: errors.Join(groupservice.ErrRejected, errors.New("You do not have permission"))}
	s := newTestServer(t, fake, nil)

	body := map[string]interface{}{"key": testKey, "group": 1, "target": 2, "rank": 3, "id": "9"}
	w := s.do(http.MethodPost, "/api/v1/rank", body)
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		w := s.do(http.MethodGet, "/api/v1/jobs/9?key="+testKey, nil)
		return w.Code == http.StatusOK && strings.Contains(w.Body.String(), `"success":false`)
	}, 5*time.Second, 10*time.Millisecond)

	w = s.do(http.MethodGet, "/api/v1/jobs/9?key="+testKey, nil)
	assert.Contains(t, w.Body.String(), "You do not have permission")
	assert.True(t, strings.HasPrefix(w.Body.String(), `{"error":null,"data":{"progress":100,"complete":true,`))
}

func TestGetJob(t *testing.T) {
	s := newTestServer(t, &fakeGroupService{}, map[string]string{
		"12345": `{"value":42}`,
		"666":   `[1,2,3]`,
	})

	t.Run("persisted result", func(t *testing.T) {
		w := s.do(http.MethodGet, "/api/v1/jobs/12345?key="+testKey, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, `{"error":null,"data":{"progress":100,"complete":true,"value":42}}`, w.Body.String())
		assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	})

	t.Run("repeated reads are identical", func(t *testing.T) {
		first := s.do(http.MethodGet, "/api/v1/jobs/12345?key="+testKey, nil)
		second := s.do(http.MethodGet, "/api/v1/jobs/12345?key="+testKey, nil)
		assert.Equal(t, first.Body.String(), second.Body.String())
	})

	t.Run("unknown job", func(t *testing.T) {
		w := s.do(http.MethodGet, "/api/v1/jobs/404404?key="+testKey, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"error":"Job not found","data":null}`, w.Body.String())
	})

	t.Run("invalid id", func(t *testing.T) {
		w := s.do(http.MethodGet, "/api/v1/jobs/bad.id?key="+testKey, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"Parameter \"id\" is not the correct data type, expected safe_string.","data":null}`, w.Body.String())
	})

	t.Run("malformed persisted result", func(t *testing.T) {
		w := s.do(http.MethodGet, "/api/v1/jobs/666?key="+testKey, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"Internal server error","data":null}`, w.Body.String())
	})
}

func TestNoRoute(t *testing.T) {
	s := newTestServer(t, &fakeGroupService{}, nil)

	w := s.do(http.MethodGet, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Not found","data":null}`, w.Body.String())
}

func TestConfigErrorEngine(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := httpHdlr.NewConfigErrorEngine(errors.New("no key configured"))

	for _, target := range []string{"/health", "/api/v1/rank", "/api/v1/jobs/1"} {
		req := httptest.NewRequest(http.MethodPost, target, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code, target)
		assert.JSONEq(t, `{"error":"Server configuration error: no key configured","data":null}`, w.Body.String(), target)
	}
}
