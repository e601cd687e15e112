// Copyright 2025 Mysticetus
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"testing"
)

func TestSignAndVerifyDecode(t *testing.T) {
	header := &Header{
		Algorithm: HeaderAlgRSA256,
		Type:      HeaderType,
		KeyID:     "key-1",
	}
	payload := &Claims{
		Iss:   "sa@fake-project.iam.gserviceaccount.com",
		Scope: "https://www.googleapis.com/auth/cloud-platform",
		Aud:   "https://oauth2.googleapis.com/token",
		Exp:   3610,
		Iat:   10,
		AdditionalClaims: map[string]interface{}{
			"foo": "bar",
		},
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}

	token, err := EncodeJWS(header, payload, privateKey)
	if err != nil {
		t.Fatal(err)
	}

	if err := VerifyJWS(token, &privateKey.PublicKey); err != nil {
		t.Fatal(err)
	}

	claims, err := DecodeJWS(token)
	if err != nil {
		t.Fatal(err)
	}

	if claims.Iss != payload.Iss {
		t.Errorf("got %q, want %q", claims.Iss, payload.Iss)
	}
	if claims.Scope != payload.Scope {
		t.Errorf("got %q, want %q", claims.Scope, payload.Scope)
	}
	if claims.Aud != payload.Aud {
		t.Errorf("got %q, want %q", claims.Aud, payload.Aud)
	}
	if claims.Exp != payload.Exp {
		t.Errorf("got %d, want %d", claims.Exp, payload.Exp)
	}
	if claims.Iat != payload.Iat {
		t.Errorf("got %d, want %d", claims.Iat, payload.Iat)
	}
	if claims.AdditionalClaims["foo"] != payload.AdditionalClaims["foo"] {
		t.Errorf("got %q, want %q", claims.AdditionalClaims["foo"], payload.AdditionalClaims["foo"])
	}
}

func TestEncodeJWS_NoPadding(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	token, err := EncodeJWS(
		&Header{Algorithm: HeaderAlgRSA256, Type: HeaderType},
		&Claims{Iss: "iss", Aud: "aud", Iat: 10, Exp: 3610},
		privateKey,
	)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(token, "=") {
		t.Errorf("token %q contains base64 padding", token)
	}
	if got := strings.Count(token, "."); got != 2 {
		t.Errorf("token has %d dots, want 2", got)
	}
}

func TestVerifyFailsOnMalformedClaim(t *testing.T) {
	err := VerifyJWS("abc.def", nil)
	if err == nil {
		t.Error("got no errors; want improperly formed JWT not to be verified")
	}
}
