package utils

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/exp/constraints"
)

var (
	ipv4Re = regexp.MustCompile(`(\d*\.).*(\.\d*)`)
	ipv6Re = regexp.MustCompile(`(\w*:\w*:).*(:\w*:\w*)`)
)

func ipv4Desensitize(ipv4Addr string) string {
	return ipv4Re.ReplaceAllString(ipv4Addr, "$1****$2")
}

func ipv6Desensitize(ipv6Addr string) string {
	return ipv6Re.ReplaceAllString(ipv6Addr, "$1****$2")
}

func IPDesensitize(ipAddr string) string {
	ipAddr = ipv4Desensitize(ipAddr)
	ipAddr = ipv6Desensitize(ipAddr)
	return ipAddr
}

func IPStringToBinary(ip string) ([]byte, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, err
	}
	b := addr.As16()
	return b[:], nil
}

func BinaryToIPString(b []byte) string {
	if len(b) < 16 {
		return "::"
	}

	addr := netip.AddrFrom16([16]byte(b))
	return addr.Unmap().String()
}

func GetIPFromHeader(headerValue string) (string, error) {
	a := strings.Split(headerValue, ",")
	h := strings.TrimSpace(a[len(a)-1])
	ip, err := netip.ParseAddr(h)
	if err != nil {
		return "", err
	}
	if !ip.IsValid() {
		return "", errors.New("invalid ip")
	}
	return ip.String(), nil
}

func GenerateRandomString(n int) (string, error) {
	const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	lettersLength := big.NewInt(int64(len(letters)))
	ret := make([]byte, n)
	for i := range n {
		num, err := rand.Int(rand.Reader, lettersLength)
		if err != nil {
			return "", err
		}
		ret[i] = letters[num.Int64()]
	}
	return string(ret), nil
}

func MustGenerateRandomString(n int) string {
	str, err := GenerateRandomString(n)
	if err != nil {
		panic(fmt.Errorf("MustGenerateRandomString: %v", err))
	}
	return str
}

// GenerateRandomHex 返回 n 个随机字节的十六进制表示
func GenerateRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func IfOr[T any](a bool, x, y T) T {
	if a {
		return x
	}
	return y
}

func Itoa[T constraints.Integer](i T) string {
	switch any(i).(type) {
	case int, int8, int16, int32, int64:
		return strconv.FormatInt(int64(i), 10)
	case uint, uint8, uint16, uint32, uint64:
		return strconv.FormatUint(uint64(i), 10)
	default:
		return ""
	}
}

func Unique[S ~[]E, E comparable](list S) S {
	if list == nil {
		return nil
	}
	seen := make(map[E]struct{}, len(list))
	out := make(S, 0, len(list))
	for _, v := range list {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func FirstError(errorer ...func() error) error {
	for _, fn := range errorer {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

type WrapError struct {
	err, errIn error
}

func NewWrapError(err, errIn error) error {
	return &WrapError{err, errIn}
}

func (e *WrapError) Error() string {
	return e.err.Error()
}

func (e *WrapError) Unwrap() error {
	return e.errIn
}
