package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/people/v1"

	"calllog_server/core/domain"
	"calllog_server/pkg/apperr"
	"calllog_server/pkg/httputil"
	"calllog_server/pkg/metrics"
	"calllog_server/pkg/resilience"
)

// =============================================================================
// Directory Adapter (People API)
// =============================================================================

var directorySources = []string{
	"DIRECTORY_SOURCE_TYPE_DOMAIN_PROFILE",
	"DIRECTORY_SOURCE_TYPE_DOMAIN_CONTACT",
}

const directoryReadMask = "names,photos,phoneNumbers,organizations"

// DirectorySearcher searches the remote people directory.
type DirectorySearcher interface {
	Search(ctx context.Context, query string) ([]*people.Person, error)
}

// RateLimiter throttles remote searches.
type RateLimiter interface {
	Wait(ctx context.Context, key string) error
}

// DirectoryConfig holds People API configuration.
type DirectoryConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	TokenURL     string
	Timeout      time.Duration
	// MaxConcurrency sizes the connection pool.
	MaxConcurrency int
}

// DirectoryAdapter resolves numbers against the remote people directory.
//
// Remote changes are not observable, so IsDirty is always false and bulk
// updates keep what was fetched before. Numbers never looked up are flagged
// incomplete and resolved at display time.
type DirectoryAdapter struct {
	searcher DirectorySearcher
	cb       *resilience.CircuitBreaker
	limiter  RateLimiter
	timeout  time.Duration
}

// NewDirectoryAdapter creates a People API backed adapter.
func NewDirectoryAdapter(ctx context.Context, cfg *DirectoryConfig) (*DirectoryAdapter, error) {
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		Scopes:       []string{people.DirectoryReadonlyScope},
	}
	// token refreshes and searches share one pooled transport
	base := httputil.NewOptimizedClient(httputil.DirectoryClientConfig(cfg.MaxConcurrency, cfg.Timeout))
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	svc, err := people.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, ts)))
	if err != nil {
		return nil, apperr.ExternalError("people api", err)
	}
	return NewDirectoryAdapterWithSearcher(&peopleSearcher{svc: svc}, cfg.Timeout), nil
}

// NewDirectoryAdapterWithSearcher wires a custom searcher.
func NewDirectoryAdapterWithSearcher(searcher DirectorySearcher, timeout time.Duration) *DirectoryAdapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DirectoryAdapter{
		searcher: searcher,
		cb:       resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("people-directory")),
		timeout:  timeout,
	}
}

// WithRateLimiter throttles searches against the directory quota.
func (a *DirectoryAdapter) WithRateLimiter(l RateLimiter) *DirectoryAdapter {
	a.limiter = l
	return a
}

func (a *DirectoryAdapter) Source() domain.LookupSource {
	return domain.LookupSourceDirectory
}

// Lookup returns a present, complete directory sub-record. It is empty when
// the directory has no match.
func (a *DirectoryAdapter) Lookup(ctx context.Context, number domain.DialerPhoneNumber) (domain.LookupInfo, error) {
	if number.IsEmpty() || !number.Valid {
		return domain.LookupInfo{Directory: &domain.DirectoryInfo{}}, nil
	}
	defer metrics.ProviderTimer("directory", "lookup")()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx, "people-directory"); err != nil {
			return domain.LookupInfo{}, apperr.Transient("people directory rate limit", err)
		}
	}

	found, err := resilience.Execute(a.cb, func() ([]*people.Person, error) {
		return a.searcher.Search(ctx, number.Normalized)
	})
	if err != nil {
		return domain.LookupInfo{}, a.wrapError(err)
	}

	return domain.LookupInfo{Directory: toDirectoryInfo(bestMatch(found, number.Normalized))}, nil
}

func (a *DirectoryAdapter) IsDirty(ctx context.Context, numbers []domain.DialerPhoneNumber, since int64) (bool, error) {
	return false, nil
}

func (a *DirectoryAdapter) BulkUpdate(ctx context.Context, existing map[string]domain.LookupInfo, since int64) (map[string]domain.LookupInfo, error) {
	out := make(map[string]domain.LookupInfo, len(existing))
	for number, info := range existing {
		sub := info.SubRecord(domain.LookupSourceDirectory)
		if sub.Directory == nil {
			sub.Directory = &domain.DirectoryInfo{Incomplete: true}
		}
		out[number] = sub
	}
	return out, nil
}

func (a *DirectoryAdapter) OnSuccessfulBulkUpdate(ctx context.Context) error {
	return nil
}

// wrapError marks server-side and breaker failures transient.
func (a *DirectoryAdapter) wrapError(err error) error {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return apperr.Transient("people directory", err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable:
			return apperr.Transient("people directory", err)
		}
	}
	return apperr.ExternalError("people directory", err)
}

// bestMatch prefers a person whose canonical number equals the query.
func bestMatch(found []*people.Person, normalized string) *people.Person {
	for _, p := range found {
		for _, ph := range p.PhoneNumbers {
			if ph != nil && ph.CanonicalForm == normalized {
				return p
			}
		}
	}
	if len(found) > 0 {
		return found[0]
	}
	return nil
}

func toDirectoryInfo(p *people.Person) *domain.DirectoryInfo {
	info := &domain.DirectoryInfo{}
	if p == nil {
		return info
	}

	info.ResourceName = p.ResourceName
	info.LookupURI = p.ResourceName
	if len(p.Names) > 0 && p.Names[0] != nil {
		info.Name = p.Names[0].DisplayName
	}
	if len(p.Photos) > 0 && p.Photos[0] != nil && !p.Photos[0].Default {
		info.PhotoURI = p.Photos[0].Url
	}
	if len(p.PhoneNumbers) > 0 && p.PhoneNumbers[0] != nil {
		info.NumberTypeLabel = p.PhoneNumbers[0].FormattedType
	}
	info.IsBusiness = len(p.Organizations) > 0 && len(p.Names) == 0
	info.CanReportAsInvalid = true
	return info
}

// =============================================================================
// People API searcher
// =============================================================================

type peopleSearcher struct {
	svc *people.Service
}

func (s *peopleSearcher) Search(ctx context.Context, query string) ([]*people.Person, error) {
	resp, err := s.svc.People.SearchDirectoryPeople().
		Query(query).
		ReadMask(directoryReadMask).
		Sources(directorySources...).
		PageSize(5).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return resp.People, nil
}
