package codeur

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const defaultCookieDomain = ".codeur.com"

// ExportedCookie is a cookie as written by common browser cookie-export extensions.
type ExportedCookie struct {
	Name           string   `json:"name"`
	Value          string   `json:"value"`
	Domain         string   `json:"domain"`
	Path           string   `json:"path"`
	ExpirationDate *float64 `json:"expirationDate"`
	HTTPOnly       bool     `json:"httpOnly"`
	Secure         *bool    `json:"secure"`
	SameSite       string   `json:"sameSite"`
}

// StorageCookie is a cookie in Playwright storage state format.
type StorageCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// StorageState is the Playwright storage state document.
type StorageState struct {
	Cookies []StorageCookie `json:"cookies"`
	Origins []any           `json:"origins"`
}

var sameSiteValues = map[string]string{
	"no_restriction": "None",
	"unspecified":    "None",
	"none":           "None",
	"lax":            "Lax",
	"strict":         "Strict",
}

// ConvertCookies turns an exported cookie list into a Playwright storage state document.
func ConvertCookies(raw []byte) ([]byte, error) {
	var exported []ExportedCookie
	if err := json.Unmarshal(raw, &exported); err != nil {
		return nil, fmt.Errorf("decode exported cookies: %w", err)
	}
	if len(exported) == 0 {
		return nil, errors.New("cookie export is empty")
	}

	state := StorageState{Cookies: make([]StorageCookie, 0, len(exported)), Origins: []any{}}
	for i, cookie := range exported {
		if cookie.Name == "" {
			return nil, fmt.Errorf("cookie #%d has no name", i)
		}
		state.Cookies = append(state.Cookies, normalizeCookie(cookie))
	}

	out, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode storage state: %w", err)
	}
	return out, nil
}

func normalizeCookie(c ExportedCookie) StorageCookie {
	out := StorageCookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  -1,
		HTTPOnly: c.HTTPOnly,
		Secure:   true,
		SameSite: "None",
	}
	if out.Domain == "" {
		out.Domain = defaultCookieDomain
	}
	if out.Path == "" {
		out.Path = "/"
	}
	if c.ExpirationDate != nil {
		out.Expires = float64(int64(*c.ExpirationDate))
	}
	if c.Secure != nil {
		out.Secure = *c.Secure
	}
	if mapped, ok := sameSiteValues[strings.ToLower(c.SameSite)]; ok {
		out.SameSite = mapped
	}
	return out
}
