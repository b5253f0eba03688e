package globalplatform

import (
	"crypto/cipher"
	"crypto/des"
	"fmt"
)

// SCP02 cryptography (GlobalPlatform Card Specification, appendix E).
//
// All primitives work on the 16-byte double-length DES keys the
// specification mandates; 3DES operations resize them to 24 bytes by
// repeating the first component (K1 K2 K1).

// Key is a double-length DES key.
type Key [16]byte

// Session key derivation purposes.
var (
	derivationENC = [2]byte{0x01, 0x82}
	derivationMAC = [2]byte{0x01, 0x01}
)

// resizeKey expands a 16-byte key to the 24-byte K1-K2-K1 form.
func resizeKey(key Key) []byte {
	out := make([]byte, 24)
	copy(out, key[:])
	copy(out[16:], key[:8])
	return out
}

// deriveKey computes a session key from a card key, the card's sequence
// counter and a two-byte purpose: two blocks of derivation data
// (purpose, counter, zeros) encrypted with 3DES-CBC under a zero IV.
func deriveKey(cardKey Key, seq [2]byte, purpose [2]byte) (Key, error) {
	data := make([]byte, 16)
	copy(data[0:2], purpose[:])
	copy(data[2:4], seq[:])

	block, err := des.NewTripleDESCipher(resizeKey(cardKey))
	if err != nil {
		return Key{}, fmt.Errorf("globalplatform: 3des: %w", err)
	}

	out := make([]byte, 16)
	cipher.NewCBCEncrypter(block, make([]byte, 8)).CryptBlocks(out, data)

	var derived Key
	copy(derived[:], out)
	return derived, nil
}

// calculateCryptogram computes the card or host cryptogram: the last
// 3DES-CBC block over the two challenges and the sequence counter,
// ISO 7816-4 padded. The operand order is the only difference between
// the two directions.
func calculateCryptogram(encKey Key, seq [2]byte, cardChallenge [6]byte, hostChallenge [8]byte, forHost bool) ([8]byte, error) {
	data := make([]byte, 24)
	if forHost {
		copy(data[0:2], seq[:])
		copy(data[2:8], cardChallenge[:])
		copy(data[8:16], hostChallenge[:])
	} else {
		copy(data[0:8], hostChallenge[:])
		copy(data[8:10], seq[:])
		copy(data[10:16], cardChallenge[:])
	}
	data[16] = 0x80

	block, err := des.NewTripleDESCipher(resizeKey(encKey))
	if err != nil {
		return [8]byte{}, fmt.Errorf("globalplatform: 3des: %w", err)
	}

	out := make([]byte, 24)
	cipher.NewCBCEncrypter(block, make([]byte, 8)).CryptBlocks(out, data)

	var cryptogram [8]byte
	copy(cryptogram[:], out[16:])
	return cryptogram, nil
}

// macFull3DES computes the SCP02 "full 3DES" retail MAC: single DES in
// CBC mode over every padded block but the last, 3DES on the last. The
// IV chains the MAC to the previous command.
func macFull3DES(key Key, icv [8]byte, data []byte) ([8]byte, error) {
	padded := padISO7816(data, 8)

	single, err := des.NewCipher(key[:8])
	if err != nil {
		return [8]byte{}, fmt.Errorf("globalplatform: des: %w", err)
	}
	triple, err := des.NewTripleDESCipher(resizeKey(key))
	if err != nil {
		return [8]byte{}, fmt.Errorf("globalplatform: 3des: %w", err)
	}

	iv := icv
	if len(padded) > 8 {
		head := make([]byte, len(padded)-8)
		cipher.NewCBCEncrypter(single, iv[:]).CryptBlocks(head, padded[:len(padded)-8])
		copy(iv[:], head[len(head)-8:])
	}

	var mac [8]byte
	last := padded[len(padded)-8:]
	for i := range mac {
		mac[i] = last[i] ^ iv[i]
	}
	triple.Encrypt(mac[:], mac[:])
	return mac, nil
}

// padISO7816 appends the mandatory 0x80 marker and zero-fills to a
// block boundary. Input already on a boundary grows by a full block.
func padISO7816(data []byte, blockSize int) []byte {
	padded := make([]byte, len(data), len(data)+blockSize)
	copy(padded, data)
	padded = append(padded, 0x80)
	for len(padded)%blockSize != 0 {
		padded = append(padded, 0x00)
	}
	return padded
}
