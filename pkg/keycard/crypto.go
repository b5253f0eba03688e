package keycard

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"
)

// PairingTokenSalt is the PBKDF2 salt fixed by the Keycard pairing
// password scheme.
const PairingTokenSalt = "Keycard Pairing Password Salt"

const pairingTokenIterations = 50000

// GeneratePairingToken stretches a pairing password into the 32-byte
// shared secret used during PAIR. Password and salt are NFKD-normalized
// first so that visually identical passwords produce the same token.
func GeneratePairingToken(password string) Key {
	pass := norm.NFKD.String(password)
	salt := norm.NFKD.String(PairingTokenSalt)

	var token Key
	copy(token[:], pbkdf2.Key([]byte(pass), []byte(salt), pairingTokenIterations, len(token), sha256.New))
	return token
}

// calculateCryptogram computes SHA-256(secret | challenge), the proof
// of token possession exchanged in both directions during PAIR.
func calculateCryptogram(secret Key, challenge [32]byte) [32]byte {
	h := sha256.New()
	h.Write(secret[:])
	h.Write(challenge[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// sharedSecret runs ECDH on secp256k1 and returns the X coordinate of
// the resulting point.
func sharedSecret(priv *secp256k1.PrivateKey, pub *secp256k1.PublicKey) Key {
	var secret Key
	copy(secret[:], secp256k1.GenerateSharedSecret(priv, pub))
	return secret
}

// deriveSessionKeys splits SHA-512(secret | pairingKey | challenge)
// into the session encryption and MAC keys.
func deriveSessionKeys(secret, pairingKey Key, challenge [32]byte) (enc, mac Key) {
	h := sha512.New()
	h.Write(secret[:])
	h.Write(pairingKey[:])
	h.Write(challenge[:])
	sum := h.Sum(nil)

	copy(enc[:], sum[:32])
	copy(mac[:], sum[32:64])
	return enc, mac
}

// encryptData ISO 7816-pads data and encrypts it with AES-256-CBC.
func encryptData(data []byte, key Key, iv [16]byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}

	padded := padISO7816(data, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(out, padded)
	return out, nil
}

// decryptData reverses encryptData, stripping the ISO 7816 padding.
func decryptData(data []byte, key Key, iv [16]byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, &ParseError{Reason: "ciphertext is not block-aligned"}
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}

	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(plain, data)
	return unpadISO7816(plain)
}

// calculateMAC encrypts pad(meta | data) under the MAC key with a zero
// IV and returns the next-to-last ciphertext block. The result doubles
// as the IV of the following APDU, which is what chains the session.
func calculateMAC(key Key, meta [16]byte, data []byte) ([16]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return [16]byte{}, err
	}

	padded := padISO7816(append(meta[:], data...), aes.BlockSize)
	out := make([]byte, len(padded))
	var zeroIV [16]byte
	cipher.NewCBCEncrypter(block, zeroIV[:]).CryptBlocks(out, padded)

	var mac [16]byte
	copy(mac[:], out[len(out)-32:len(out)-16])
	return mac, nil
}

// oneShotEncrypt encrypts initialization data (PIN, PUK, pairing
// secret) against the card's public key before any channel exists. The
// output carries the ephemeral public key, the IV and the ciphertext.
func oneShotEncrypt(cardKey *secp256k1.PublicKey, random io.Reader, data []byte) ([]byte, error) {
	if random == nil {
		random = rand.Reader
	}

	priv, err := secp256k1.GeneratePrivateKeyFromRand(random)
	if err != nil {
		return nil, err
	}
	secret := sharedSecret(priv, cardKey)

	var iv [16]byte
	if _, err := io.ReadFull(random, iv[:]); err != nil {
		return nil, err
	}

	ciphertext, err := encryptData(data, secret, iv)
	if err != nil {
		return nil, err
	}

	pub := priv.PubKey().SerializeUncompressed()
	out := make([]byte, 0, 1+len(pub)+len(iv)+len(ciphertext))
	out = append(out, byte(len(pub)))
	out = append(out, pub...)
	out = append(out, iv[:]...)
	out = append(out, ciphertext...)
	return out, nil
}

// padISO7816 appends 0x80 and zero-fills to the block size. A full
// final block still grows by one whole block.
func padISO7816(data []byte, blockSize int) []byte {
	padded := make([]byte, len(data)+blockSize-len(data)%blockSize)
	copy(padded, data)
	padded[len(data)] = 0x80
	return padded
}

func unpadISO7816(data []byte) ([]byte, error) {
	for i := len(data) - 1; i >= 0; i-- {
		switch data[i] {
		case 0x00:
			continue
		case 0x80:
			return data[:i], nil
		default:
			return nil, &ParseError{Reason: "invalid padding"}
		}
	}
	return nil, &ParseError{Reason: "invalid padding"}
}
