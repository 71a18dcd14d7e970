package robinhood

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/pquerna/otp/totp"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type accountsResponse struct {
	Results []struct {
		ID           string `json:"id"`
		BuyingPower  string `json:"buying_power"`
		CryptoBPower string `json:"crypto_buying_power"`
	} `json:"results"`
}

// Login obtains an access token, the crypto account id and the tradable
// currency pairs.
func (c *Client) Login(ctx context.Context) error {
	body := map[string]any{
		"client_id":  clientID,
		"expires_in": 86400,
		"grant_type": "password",
		"scope":      "internal",
		"username":   c.cfg.Username,
		"password":   c.cfg.Password,
	}
	if c.cfg.TOTPSecret != "" {
		code, err := totp.GenerateCode(c.cfg.TOTPSecret, c.now())
		if err != nil {
			return fmt.Errorf("robinhood: totp: %w", err)
		}
		body["mfa_code"] = code
	}

	var tok tokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "auth.token", body, &tok); err != nil {
		return err
	}
	if tok.AccessToken == "" {
		return errors.New("robinhood: login returned no access token")
	}
	c.mu.Lock()
	c.token = tok.AccessToken
	c.mu.Unlock()

	var accts accountsResponse
	if err := c.doRequest(ctx, http.MethodGet, "crypto.accounts", nil, &accts); err != nil {
		return err
	}
	if len(accts.Results) == 0 || accts.Results[0].ID == "" {
		return errors.New("robinhood: no crypto account")
	}
	c.mu.Lock()
	c.accountID = accts.Results[0].ID
	c.mu.Unlock()

	if err := c.loadPairs(ctx); err != nil {
		return err
	}
	c.logger.Info("logged in", "mfa", c.cfg.TOTPSecret != "")
	return nil
}
