package signature

import (
	"regexp"
	"strings"
	"unicode"

	"formcapture/internal/models"
	"formcapture/pkg/errors"
)

var signerPhonePattern = regexp.MustCompile(`^[\d\s\+\-\(\)]+$`)

// NormalizeSigner 证件号只保留数字，电话去掉空格
func NormalizeSigner(info models.SignerInfo) (models.SignerInfo, error) {
	out := models.SignerInfo{
		Name:    strings.TrimSpace(info.Name),
		Company: strings.TrimSpace(info.Company),
		Role:    strings.TrimSpace(info.Role),
	}

	out.Document = strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, info.Document)

	phone := strings.TrimSpace(info.Phone)
	if phone != "" {
		if !signerPhonePattern.MatchString(phone) {
			return models.SignerInfo{}, errors.New(errors.CodeInvalidParameter, "电话号码只能包含数字、空格和 + - ( )")
		}
		out.Phone = strings.Join(strings.Fields(phone), "")
	}
	return out, nil
}
