package refresher

const (
	schwabTokenURL   = "https://api.schwabapi.com/v1/oauth/token"
	coinbaseTokenURL = "https://login.coinbase.com/oauth2/token"
)

// NewSchwab builds a refresher for the Schwab trading API. Schwab expects
// client credentials in a Basic auth header.
func NewSchwab(clientID, clientSecret string) Refresher {
	return newOAuthRefresher(schwabTokenURL, clientID, clientSecret, basicAuthHeader)
}

// NewCoinbase builds a refresher for Coinbase. Coinbase expects client
// credentials in the form body.
func NewCoinbase(clientID, clientSecret string) Refresher {
	return newOAuthRefresher(coinbaseTokenURL, clientID, clientSecret, formBodyCredentials)
}

// newSchwabWithURL exists for tests that point the refresher at a local
// token endpoint.
func newSchwabWithURL(tokenURL, clientID, clientSecret string) Refresher {
	return newOAuthRefresher(tokenURL, clientID, clientSecret, basicAuthHeader)
}

func newCoinbaseWithURL(tokenURL, clientID, clientSecret string) Refresher {
	return newOAuthRefresher(tokenURL, clientID, clientSecret, formBodyCredentials)
}
