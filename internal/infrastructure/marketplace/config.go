package marketplace

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/meschain/marketsync/internal/domain/marketsync"
)

// Production endpoints
const (
	TrendyolAPIURL          = "https://apigw.trendyol.com/integration"
	HepsiburadaListingURL   = "https://listing-external.hepsiburada.com"
	HepsiburadaOrderURL     = "https://oms-external.hepsiburada.com"
	HepsiburadaProductURL   = "https://mpop.hepsiburada.com"
	N11APIURL               = "https://api.n11.com/ws"
	AmazonAPIURL            = "https://sellingpartnerapi-eu.amazon.com"
	AmazonTokenURL          = "https://api.amazon.com/auth/o2/token"
	EbayAPIURL              = "https://api.ebay.com"
	EbayTokenPath           = "/identity/v1/oauth2/token"
	defaultEbayMarketplace  = "EBAY_DE"
	defaultEbayScope        = "https://api.ebay.com/oauth/api_scope/sell.inventory https://api.ebay.com/oauth/api_scope/sell.fulfillment"
	defaultAmazonMarketplID = "A33AVAJ2PDY3EV"
)

// Credential errors
var (
	ErrMissingCredential = errors.New("marketplace: required credential missing")
)

func missing(code marketsync.MarketplaceCode, field string) error {
	return fmt.Errorf("%w: %s %s", ErrMissingCredential, code, field)
}

// decodeCredentials unmarshals an opened credential blob
func decodeCredentials(raw []byte, out any) error {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return errEmptyCredentials
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode credentials: %w", err)
	}
	return nil
}

// TrendyolConfig holds Trendyol seller API credentials
type TrendyolConfig struct {
	SupplierID string `json:"supplier_id"`
	APIKey     string `json:"api_key"`
	APISecret  string `json:"api_secret"`
	BaseURL    string `json:"base_url,omitempty"`
}

// Validate checks required fields and applies defaults
func (c *TrendyolConfig) Validate() error {
	switch {
	case c.SupplierID == "":
		return missing(marketsync.MarketplaceTrendyol, "supplier_id")
	case c.APIKey == "":
		return missing(marketsync.MarketplaceTrendyol, "api_key")
	case c.APISecret == "":
		return missing(marketsync.MarketplaceTrendyol, "api_secret")
	}
	if c.BaseURL == "" {
		c.BaseURL = TrendyolAPIURL
	}
	return nil
}

// HepsiburadaConfig holds Hepsiburada merchant credentials. The three hosts
// default to production; BaseURL, when set, replaces all of them.
type HepsiburadaConfig struct {
	MerchantID string `json:"merchant_id"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	BaseURL    string `json:"base_url,omitempty"`
	ListingURL string `json:"listing_url,omitempty"`
	OrderURL   string `json:"order_url,omitempty"`
	ProductURL string `json:"product_url,omitempty"`
}

// Validate checks required fields and applies defaults
func (c *HepsiburadaConfig) Validate() error {
	switch {
	case c.MerchantID == "":
		return missing(marketsync.MarketplaceHepsiburada, "merchant_id")
	case c.Username == "":
		return missing(marketsync.MarketplaceHepsiburada, "username")
	case c.Password == "":
		return missing(marketsync.MarketplaceHepsiburada, "password")
	}
	if c.BaseURL != "" {
		c.ListingURL, c.OrderURL, c.ProductURL = c.BaseURL, c.BaseURL, c.BaseURL
	}
	if c.ListingURL == "" {
		c.ListingURL = HepsiburadaListingURL
	}
	if c.OrderURL == "" {
		c.OrderURL = HepsiburadaOrderURL
	}
	if c.ProductURL == "" {
		c.ProductURL = HepsiburadaProductURL
	}
	return nil
}

// N11Config holds N11 SOAP API keys
type N11Config struct {
	AppKey    string `json:"app_key"`
	AppSecret string `json:"app_secret"`
	BaseURL   string `json:"base_url,omitempty"`
	// ShipmentTemplate is the seller's shipment template name used on new listings
	ShipmentTemplate string `json:"shipment_template,omitempty"`
	// CategoryDepth bounds the category tree walk (default 2)
	CategoryDepth int `json:"category_depth,omitempty"`
}

// Validate checks required fields and applies defaults
func (c *N11Config) Validate() error {
	switch {
	case c.AppKey == "":
		return missing(marketsync.MarketplaceN11, "app_key")
	case c.AppSecret == "":
		return missing(marketsync.MarketplaceN11, "app_secret")
	}
	if c.BaseURL == "" {
		c.BaseURL = N11APIURL
	}
	if c.CategoryDepth <= 0 {
		c.CategoryDepth = 2
	}
	return nil
}

// AmazonConfig holds Selling Partner API credentials
type AmazonConfig struct {
	SellerID      string `json:"seller_id"`
	MarketplaceID string `json:"marketplace_id,omitempty"`
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	RefreshToken  string `json:"refresh_token"`
	BaseURL       string `json:"base_url,omitempty"`
	TokenURL      string `json:"token_url,omitempty"`
}

// Validate checks required fields and applies defaults
func (c *AmazonConfig) Validate() error {
	switch {
	case c.SellerID == "":
		return missing(marketsync.MarketplaceAmazon, "seller_id")
	case c.ClientID == "":
		return missing(marketsync.MarketplaceAmazon, "client_id")
	case c.ClientSecret == "":
		return missing(marketsync.MarketplaceAmazon, "client_secret")
	case c.RefreshToken == "":
		return missing(marketsync.MarketplaceAmazon, "refresh_token")
	}
	if c.MarketplaceID == "" {
		c.MarketplaceID = defaultAmazonMarketplID
	}
	if c.BaseURL == "" {
		c.BaseURL = AmazonAPIURL
	}
	if c.TokenURL == "" {
		c.TokenURL = AmazonTokenURL
	}
	return nil
}

// EbayConfig holds eBay OAuth application credentials. With a RefreshToken the
// user token grant is used, otherwise client credentials.
type EbayConfig struct {
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	RefreshToken  string `json:"refresh_token,omitempty"`
	MarketplaceID string `json:"marketplace_id,omitempty"`
	Scope         string `json:"scope,omitempty"`
	BaseURL       string `json:"base_url,omitempty"`
	// Currency of the listings; defaults to EUR
	Currency string `json:"currency,omitempty"`
}

// Validate checks required fields and applies defaults
func (c *EbayConfig) Validate() error {
	switch {
	case c.ClientID == "":
		return missing(marketsync.MarketplaceEbay, "client_id")
	case c.ClientSecret == "":
		return missing(marketsync.MarketplaceEbay, "client_secret")
	}
	if c.MarketplaceID == "" {
		c.MarketplaceID = defaultEbayMarketplace
	}
	if c.Scope == "" {
		c.Scope = defaultEbayScope
	}
	if c.BaseURL == "" {
		c.BaseURL = EbayAPIURL
	}
	if c.Currency == "" {
		c.Currency = "EUR"
	}
	return nil
}
