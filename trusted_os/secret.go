// Copyright 2024 The Armored Signer authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"crypto/aes"
	"crypto/sha256"
	"errors"

	"github.com/usbarmory/tamago/soc/nxp/imx6ul"
)

// rootSecretDiversifier selects the root secret among keys derived from the
// same OTPMK.
const rootSecretDiversifier = "armored-signer/root-secret/v1"

// rootSecret derives the device root secret from the hardware unique key in
// a manner equivalent to PKCS#11 C_DeriveKey with CKM_AES_CBC_ENCRYPT_DATA.
// All signing keys are derived from it.
func rootSecret() ([]byte, error) {
	div := sha256.Sum256([]byte(rootSecretDiversifier))

	switch {
	case imx6ul.Native && !debug && !imx6ul.SNVS.Available():
		return nil, errors.New("SNVS not available on a release build")
	case !imx6ul.Native && debug:
		// emulation is only supported on debug builds, use a dummy key
		return div[:], nil
	case !imx6ul.Native && !debug:
		return nil, errors.New("emulated release build")
	}

	switch {
	case imx6ul.CAAM != nil:
		key := make([]byte, sha256.Size)
		if err := imx6ul.CAAM.DeriveKey(div[:], key); err != nil {
			return nil, err
		}
		return key, nil
	case imx6ul.DCP != nil:
		var iv [aes.BlockSize]byte
		copy(iv[:], div[sha256.Size-aes.BlockSize:])
		return imx6ul.DCP.DeriveKey(div[:], iv[:], -1)
	}

	return nil, errors.New("unsupported hardware")
}
