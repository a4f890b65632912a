package payments

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
	"github.com/golang-jwt/jwt/v5"
)

// CallbackClaims is the payload a provider signs when a payment completes.
type CallbackClaims struct {
	Sublog int64  `json:"sublog"`
	Ref    string `json:"ref"`
	Amount int64  `json:"amount"`
	jwt.RegisteredClaims
}

// Token accepts callbacks carrying an HS256 JWT signed with a shared secret.
type Token struct {
	secret      []byte
	checkoutURL string
}

func NewToken(secret, checkoutURL string) *Token {
	return &Token{secret: []byte(secret), checkoutURL: checkoutURL}
}

func (t *Token) Name() string { return "token" }

func (t *Token) Start(sub models.Subscription, entry models.SubscriptionLog) (Request, error) {
	req := Request{Gateway: t.Name(), SublogID: entry.ID, AmountCents: sub.CostCents, Currency: sub.Currency}
	if t.checkoutURL != "" {
		u, err := url.Parse(t.checkoutURL)
		if err != nil {
			return Request{}, fmt.Errorf("parse checkout url: %w", err)
		}
		q := u.Query()
		q.Set("sublog", strconv.FormatInt(entry.ID, 10))
		q.Set("amount", strconv.FormatInt(sub.CostCents, 10))
		q.Set("currency", sub.Currency)
		u.RawQuery = q.Encode()
		req.CheckoutURL = u.String()
	}
	return req, nil
}

// Verify accepts either a bare token or {"token": "..."}.
func (t *Token) Verify(body []byte) (*Confirmation, error) {
	raw := strings.TrimSpace(string(body))
	if strings.HasPrefix(raw, "{") {
		var wrapper struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return nil, apperr.BadRequest("payment_invalid")
		}
		raw = wrapper.Token
	}
	if raw == "" || len(t.secret) == 0 {
		return nil, apperr.BadRequest("payment_invalid")
	}
	claims := &CallbackClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid || claims.Sublog <= 0 || claims.Ref == "" {
		return nil, apperr.BadRequest("payment_invalid")
	}
	return &Confirmation{SublogID: claims.Sublog, VendorRef: claims.Ref, AmountCents: claims.Amount}, nil
}

// Sign issues a callback token; providers and tests use it.
func Sign(secret string, sublog int64, ref string, amount int64, ttl time.Duration) (string, error) {
	claims := CallbackClaims{
		Sublog: sublog,
		Ref:    ref,
		Amount: amount,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
