package bin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/mstgnz/vpos/provider"
)

// ErrUnknownBin is returned by a Source that has no record for a prefix
var ErrUnknownBin = errors.New("bin: unknown prefix")

// Source is one external BIN data provider
type Source interface {
	Name() string
	Lookup(ctx context.Context, prefix string) (*provider.BinInfo, error)
}

// HTTPSource queries a binlist style JSON endpoint: GET {base}/{prefix}
type HTTPSource struct {
	name   string
	client *provider.ProviderHTTPClient
}

type binlistResponse struct {
	Scheme  string `json:"scheme"`
	Type    string `json:"type"`
	Brand   string `json:"brand"`
	Prepaid bool   `json:"prepaid"`
	Country struct {
		Alpha2 string `json:"alpha2"`
	} `json:"country"`
	Bank struct {
		Name string `json:"name"`
	} `json:"bank"`
	Family string `json:"family"`
}

// NewHTTPSource creates a source for baseURL
func NewHTTPSource(name, baseURL string, timeout time.Duration) *HTTPSource {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSource{
		name: name,
		client: provider.NewProviderHTTPClient(&provider.HTTPClientConfig{
			Provider: "bin:" + name,
			BaseURL:  baseURL,
			Timeout:  timeout,
			DefaultHeaders: map[string]string{
				"Accept":         "application/json",
				"Accept-Version": "3",
			},
		}),
	}
}

func (s *HTTPSource) Name() string {
	return s.name
}

func (s *HTTPSource) Lookup(ctx context.Context, prefix string) (*provider.BinInfo, error) {
	resp, err := s.client.SendRaw(ctx, &provider.HTTPRequest{
		Operation: "bin_lookup",
		Method:    http.MethodGet,
		Endpoint:  "/" + prefix,
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrUnknownBin
		}
		return nil, err
	}

	var body binlistResponse
	if err := s.client.ParseJSONResponse(resp, &body); err != nil {
		return nil, err
	}
	if body.Scheme == "" && body.Bank.Name == "" {
		return nil, ErrUnknownBin
	}

	info := &provider.BinInfo{
		Bin:      prefix,
		BankName: body.Bank.Name,
		BankCode: NormalizeBankCode(body.Bank.Name),
		Brand:    normalizeBrand(body.Scheme),
		Type:     normalizeType(body.Type, body.Prepaid),
		Family:   body.Family,
		Country:  strings.ToUpper(body.Country.Alpha2),
		Source:   s.name,
	}
	return info, nil
}

// TableSource answers from a fixed in-memory table keyed by 6 or 8 digit
// prefix
type TableSource struct {
	name  string
	table map[string]provider.BinInfo
}

// NewTableSource creates a source from table
func NewTableSource(name string, table map[string]provider.BinInfo) *TableSource {
	return &TableSource{name: name, table: table}
}

func (s *TableSource) Name() string {
	return s.name
}

func (s *TableSource) Lookup(_ context.Context, prefix string) (*provider.BinInfo, error) {
	if info, ok := s.table[prefix]; ok {
		info.Bin = prefix
		info.Source = s.name
		return &info, nil
	}
	if len(prefix) > 6 {
		if info, ok := s.table[prefix[:6]]; ok {
			info.Bin = prefix[:6]
			info.Source = s.name
			return &info, nil
		}
	}
	return nil, ErrUnknownBin
}

func normalizeBrand(scheme string) string {
	switch strings.ToLower(strings.TrimSpace(scheme)) {
	case "visa":
		return "Visa"
	case "mastercard", "master", "maestro":
		return "Mastercard"
	case "amex", "american express":
		return "Amex"
	case "troy":
		return "Troy"
	case "discover":
		return "Discover"
	case "mir":
		return "Mir"
	case "":
		return "Unknown"
	}
	return scheme
}

func normalizeType(t string, prepaid bool) provider.CardType {
	if prepaid {
		return provider.CardPrepaid
	}
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "credit":
		return provider.CardCredit
	case "debit":
		return provider.CardDebit
	case "prepaid":
		return provider.CardPrepaid
	}
	return provider.CardUnknown
}
