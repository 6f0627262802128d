package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"event-companion-sync/internal/domain"
	"event-companion-sync/internal/domain/model"
	"event-companion-sync/internal/domain/ports/adapter"
)

var _ adapter.ContentSource = (*WordPressSource)(nil)

// DefaultRoutes maps object types to WP REST collections under /wp-json/wp/v2.
var DefaultRoutes = map[model.ObjectType]string{
	model.ObjectTypeAgenda:     "sessions",
	model.ObjectTypeSpeakers:   "speakers",
	model.ObjectTypeExhibitors: "exhibitors",
	model.ObjectTypeUsers:      "users",
	model.ObjectTypeContent:    "posts",
}

// WordPressSource reads collections from the WordPress REST API, using the
// X-WP-Total header for counts and page/per_page for batches.
type WordPressSource struct {
	base     string
	user     string
	password string
	routes   map[model.ObjectType]string
	client   *http.Client
}

func NewWordPressSource(baseURL, user, appPassword string, timeout time.Duration, routes map[model.ObjectType]string) (*WordPressSource, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid wordpress base url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	r := make(map[model.ObjectType]string, len(DefaultRoutes))
	for k, v := range DefaultRoutes {
		r[k] = v
	}
	for k, v := range routes {
		r[k] = v
	}
	return &WordPressSource{
		base:     u.String(),
		user:     user,
		password: appPassword,
		routes:   r,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (w *WordPressSource) Count(ctx context.Context, objectType model.ObjectType) (int, error) {
	resp, err := w.get(ctx, objectType, 1, 1)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return headerInt(resp, "X-WP-Total")
}

// FetchBatch reads the page containing offset. offset should be a multiple
// of limit, which is how the runner walks a collection.
func (w *WordPressSource) FetchBatch(ctx context.Context, objectType model.ObjectType, offset, limit int) (adapter.Batch, error) {
	if limit <= 0 || offset < 0 {
		return adapter.Batch{}, domain.ErrInvalidArgument
	}
	page := offset/limit + 1
	resp, err := w.get(ctx, objectType, page, limit)
	if err != nil {
		return adapter.Batch{}, err
	}
	defer resp.Body.Close()

	var items []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return adapter.Batch{}, fmt.Errorf("decode %s page %d: %w", objectType, page, err)
	}
	pages, err := headerInt(resp, "X-WP-TotalPages")
	if err != nil {
		pages = page
	}
	return adapter.Batch{Records: len(items), Done: page >= pages || len(items) < limit}, nil
}

func (w *WordPressSource) get(ctx context.Context, objectType model.ObjectType, page, perPage int) (*http.Response, error) {
	route, ok := w.routes[objectType]
	if !ok {
		return nil, domain.ErrInvalidArgument
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	endpoint := w.base + "/wp-json/wp/v2/" + route + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if w.user != "" {
		req.SetBasicAuth(w.user, w.password)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		var ne interface{ Timeout() bool }
		if (errors.As(err, &ne) && ne.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", adapter.ErrRecoverable, err)
		}
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := fmt.Sprintf("wordpress %s: %s %s", route, resp.Status, strings.TrimSpace(string(body)))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: %s", adapter.ErrRecoverable, msg)
	}
	return nil, errors.New(msg)
}

func headerInt(resp *http.Response, name string) (int, error) {
	v := resp.Header.Get(name)
	if v == "" {
		return 0, fmt.Errorf("missing %s header", name)
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad %s header %q", name, v)
	}
	return n, nil
}
