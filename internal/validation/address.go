// Package validation содержит функции валидации входных данных.
package validation

import "strings"

// IsValidWalletAddress проверяет, что строка является EVM-адресом кошелька:
// префикс 0x и 40 шестнадцатеричных символов. Регистр не учитывается.
func IsValidWalletAddress(address string) bool {
	if len(address) != 42 {
		return false
	}
	if address[0] != '0' || (address[1] != 'x' && address[1] != 'X') {
		return false
	}

	for _, ch := range address[2:] {
		switch {
		case ch >= '0' && ch <= '9':
		case ch >= 'a' && ch <= 'f':
		case ch >= 'A' && ch <= 'F':
		default:
			return false
		}
	}

	return true
}

// NormalizeWallet приводит адрес кошелька к каноническому виду:
// нижний регистр. Все обращения к счёту используют нормализованный адрес.
func NormalizeWallet(address string) string {
	return strings.ToLower(address)
}
