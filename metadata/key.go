// Copyright 2022-2023 VMware, Inc.
//
// This product is licensed to you under the BSD-2 license (the "License").
// You may not use this product except in compliance with the BSD-2 License.
// This product may include a number of subcomponents with separate copyright
// notices and license terms. Your use of these subcomponents is subject to
// the terms and conditions of the subcomponent's license, as noted in the
// LICENSE file.
//
// SPDX-License-Identifier: BSD-2-Clause

package metadata

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	"github.com/secure-systems-lab/go-securesystemslib/cjson"
)

// ID returns the key's identifier: the hex-encoded SHA-256 digest of the
// canonical JSON encoding of its keytype/scheme/keyval fields. It is computed
// once and cached, since it is consulted on every signature check.
func (k *Key) ID() string {
	k.idOnce.Do(func() {
		data, err := cjson.EncodeCanonical(k)
		if err != nil {
			return
		}
		digest := sha256.Sum256(data)
		k.id = hex.EncodeToString(digest[:])
	})
	return k.id
}

// ToPublicKey decodes the PEM-encoded keyval.public field into a crypto.PublicKey.
func (k *Key) ToPublicKey() (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(k.Value.PublicKey))
	if block == nil {
		return nil, ErrValue{Msg: fmt.Sprintf("could not find a PEM block in key %s", k.ID())}
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, ErrValue{Msg: fmt.Sprintf("failed to parse public key: %v", err)}
	}
	return pub, nil
}

// KeyFromPublicKey builds a Key record from a crypto.PublicKey, inferring the
// keytype/scheme from its concrete type.
func KeyFromPublicKey(pub crypto.PublicKey) (*Key, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, ErrValue{Msg: fmt.Sprintf("failed to marshal public key: %v", err)}
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	var keyType, scheme string
	switch pub.(type) {
	case ed25519.PublicKey:
		keyType, scheme = KeyTypeEd25519, KeyTypeEd25519
	case *ecdsa.PublicKey:
		keyType, scheme = KeyTypeECDSA_SHA2_P256, KeyTypeECDSA_SHA2_P256
	case *rsa.PublicKey:
		keyType, scheme = KeyTypeRSA, "rsassa-pss-sha256"
	default:
		return nil, ErrType{Msg: fmt.Sprintf("unsupported public key type %T", pub)}
	}

	return &Key{
		Type:   keyType,
		Scheme: scheme,
		Value:  KeyVal{PublicKey: string(pemBytes)},
	}, nil
}
