package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rastion/rastion-datasets/internal/models"
	"github.com/rastion/rastion-datasets/pkg/scoring"
)

const (
	giteaPageSize    = 50
	giteaMaxPages    = 20
	giteaConfigFile  = "config.json"
	giteaFetchLimit  = 4
	giteaConfigLimit = 1 << 20
)

// GiteaSource discovers problem repositories through the Gitea REST API and
// reads each repository's config.json from its default branch.
type GiteaSource struct {
	baseURL string
	token   string
	query   string
	client  *http.Client
	logger  *zap.Logger
}

type giteaSearchResponse struct {
	OK   bool        `json:"ok"`
	Data []giteaRepo `json:"data"`
}

type giteaRepo struct {
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
	Owner         struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// NewGiteaSource constructs the source. client may be nil.
func NewGiteaSource(baseURL, token, query string, client *http.Client, logger *zap.Logger) *GiteaSource {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GiteaSource{baseURL: baseURL, token: token, query: query, client: client, logger: logger}
}

// Name identifies the source in logs.
func (s *GiteaSource) Name() string {
	return models.ProblemSourceGitea + ":" + s.baseURL
}

// List pages through repository search results and fetches configs concurrently.
func (s *GiteaSource) List(ctx context.Context) ([]models.ProblemRepository, error) {
	found, err := s.search(ctx)
	if err != nil {
		return nil, err
	}

	repos := make([]models.ProblemRepository, len(found))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(giteaFetchLimit)
	for i, item := range found {
		i, item := i, item
		g.Go(func() error {
			repo := models.ProblemRepository{
				Owner:     item.Owner.Login,
				Name:      item.Name,
				Source:    models.ProblemSourceGitea,
				CreatedBy: models.SystemUserID,
			}
			schema, err := s.fetchConfig(gctx, item)
			if err != nil {
				s.logger.Debug("gitea config unavailable", zap.String("repository", repo.FullName()), zap.Error(err))
			}
			repo.DeclaredSchema.Schema = schema
			repo.ProblemType = schema.DeclaredProblemType()
			repos[i] = repo
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return repos, nil
}

func (s *GiteaSource) search(ctx context.Context) ([]giteaRepo, error) {
	var all []giteaRepo
	for page := 1; page <= giteaMaxPages; page++ {
		params := url.Values{}
		params.Set("q", s.query)
		params.Set("limit", strconv.Itoa(giteaPageSize))
		params.Set("page", strconv.Itoa(page))

		var resp giteaSearchResponse
		if err := s.getJSON(ctx, "/api/v1/repos/search?"+params.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("search gitea repositories: %w", err)
		}
		all = append(all, resp.Data...)
		if len(resp.Data) < giteaPageSize {
			break
		}
	}
	return all, nil
}

func (s *GiteaSource) fetchConfig(ctx context.Context, repo giteaRepo) (*scoring.Schema, error) {
	path := fmt.Sprintf("/api/v1/repos/%s/%s/raw/%s", url.PathEscape(repo.Owner.Login), url.PathEscape(repo.Name), giteaConfigFile)
	if repo.DefaultBranch != "" {
		path += "?ref=" + url.QueryEscape(repo.DefaultBranch)
	}
	body, err := s.get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, giteaConfigLimit))
	if err != nil {
		return nil, err
	}
	return scoring.ParseSchema(raw)
}

func (s *GiteaSource) getJSON(ctx context.Context, path string, dest interface{}) error {
	body, err := s.get(ctx, path)
	if err != nil {
		return err
	}
	defer body.Close()
	return json.NewDecoder(body).Decode(dest)
}

func (s *GiteaSource) get(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "token "+s.token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("gitea %s: unexpected status %d", path, resp.StatusCode)
	}
	return resp.Body, nil
}
