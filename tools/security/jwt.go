package security

import (
	"context"
	"strings"
	"time"

	"SuperChat/tools/errs"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Options controls signing and verification parameters.
type Options struct {
	Secret  []byte        // HMAC secret (production: ENV/KMS)
	Alg     string        // HS256/HS384/HS512 (default HS256)
	TTL     time.Duration // token lifetime for Generate (default 2h)
	Timeout time.Duration // bound on a single Verify call (default 3s)
}

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, Alg: "HS256", TTL: 2 * time.Hour, Timeout: 3 * time.Second}
}

// Identity is the verified view of a token: who the subject is and which
// roles the identity provider granted. Immutable per session.
type Identity struct {
	Subject  string
	Roles    []string
	ExpireAt time.Time
}

// Verifier is the identity collaborator: verifyToken -> {subject, roles}.
type Verifier struct {
	opts Options
}

func NewVerifier(opts Options) (*Verifier, error) {
	if _, err := signingMethod(opts.Alg); err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	return &Verifier{opts: opts}, nil
}

// Verify parses and validates token within the configured bound. An
// unresponsive or already-expired context yields ErrAuthTimeout rather than
// a hang; a bad token yields ErrTokenInvalid.
func (v *Verifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, errs.ErrTokenInvalid.WrapMsg("empty token")
	}

	ctx, cancel := context.WithTimeout(ctx, v.opts.Timeout)
	defer cancel()
	if ctx.Err() != nil {
		return nil, errs.ErrAuthTimeout.WrapMsg("identity verification timed out")
	}

	type result struct {
		id  *Identity
		err error
	}
	ch := make(chan result, 1)
	go func() {
		id, err := v.verify(token)
		ch <- result{id: id, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, errs.ErrAuthTimeout.WrapMsg("identity verification timed out")
	case r := <-ch:
		return r.id, r.err
	}
}

func (v *Verifier) verify(token string) (*Identity, error) {
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		// Only the HMAC family is accepted.
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errs.New("unexpected alg", "alg", t.Header["alg"])
		}
		return v.opts.Secret, nil
	})
	if err != nil {
		return nil, errs.ErrTokenInvalid.WrapMsg(err.Error())
	}
	if !parsed.Valid {
		return nil, errs.ErrTokenInvalid.WrapMsg("invalid token")
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errs.ErrTokenInvalid.WrapMsg("claims type mismatch")
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		return nil, errs.ErrTokenInvalid.WrapMsg("missing sub claim")
	}
	id := &Identity{Subject: sub}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpireAt = exp.Time
	}
	if raw, ok := claims["scope"]; ok {
		switch t := raw.(type) {
		case string:
			id.Roles = strings.Fields(t)
		case []any:
			for _, r := range t {
				if s, ok := r.(string); ok {
					id.Roles = append(id.Roles, s)
				}
			}
		}
	}
	return id, nil
}

// Generate issues a token for userID; used by tests and local tooling.
func Generate(opts Options, userID string, scopes []string) (string, time.Time, error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return "", time.Time{}, err
	}
	// zero means default; a negative TTL mints an already-expired token
	if opts.TTL == 0 {
		opts.TTL = 2 * time.Hour
	}
	now := time.Now()
	exp := now.Add(opts.TTL)

	claims := jwtlib.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
	}
	if len(scopes) > 0 {
		claims["scope"] = strings.Join(scopes, " ")
	}

	tok := jwtlib.NewWithClaims(method, claims)
	signed, err := tok.SignedString(opts.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwtlib.SigningMethodHS256, nil
	case "HS384":
		return jwtlib.SigningMethodHS384, nil
	case "HS512":
		return jwtlib.SigningMethodHS512, nil
	default:
		return nil, errs.New("unsupported alg", "alg", alg)
	}
}
