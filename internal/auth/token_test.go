package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/risklock/livesync/internal/events"
)

func TestSessionLoginDecodesClaims(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	token, err := issuer.Issue(Claims{UserID: "17", Role: "SUPPORT", SubscriptionTier: "elite"})
	if err != nil {
		t.Fatalf("Issue err: %v", err)
	}

	session := NewSession(nil)
	if err := session.Login(token); err != nil {
		t.Fatalf("Login err: %v", err)
	}

	claims, ok := session.Claims()
	if !ok {
		t.Fatal("expected claims after login")
	}
	if claims.Identity() != "17" {
		t.Fatalf("unexpected identity: %s", claims.Identity())
	}
	if !claims.IsStaff() || !claims.IsSubscriber() {
		t.Fatalf("unexpected role flags: %+v", claims)
	}
}

func TestSessionLoginRejectsGarbage(t *testing.T) {
	session := NewSession(nil)
	if err := session.Login("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if session.Authenticated() {
		t.Fatal("session must stay logged out")
	}
}

func TestSessionLoginRejectsExpired(t *testing.T) {
	claims := Claims{UserID: "1"}
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign err: %v", err)
	}

	if err := NewSession(nil).Login(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestExpirePublishesOnce(t *testing.T) {
	bus := events.NewBus()
	published := 0
	bus.Subscribe(func(events.Event) { published++ }, events.AuthExpired)

	token, _ := NewIssuer("secret", time.Hour).Issue(Claims{UserID: "3"})
	session := NewSession(bus)
	if err := session.Login(token); err != nil {
		t.Fatalf("Login err: %v", err)
	}

	session.Expire("dashboard")
	session.Expire("support")

	if published != 1 {
		t.Fatalf("expected one AuthExpired event, got %d", published)
	}
	if session.Token() != "" {
		t.Fatal("token should be cleared")
	}
}

func TestIssuerVerify(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	token, err := issuer.Issue(Claims{UserID: "5", Role: "USER"})
	if err != nil {
		t.Fatalf("Issue err: %v", err)
	}

	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify err: %v", err)
	}
	if claims.UserID != "5" || claims.Subject != "5" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := NewIssuer("other", time.Hour).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}
