package submission

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// 校验类型
const (
	KindNumericID    = "numeric-id"
	KindPhone        = "phone"
	KindDigitsOnly   = "digits-only"
	KindEmail        = "email"
	KindAlphanumeric = "alphanumeric"
)

// 表单配置中沿用的别名
var kindAliases = map[string]string{
	"cedula":       KindNumericID,
	"telefono":     KindPhone,
	"numero":       KindDigitsOnly,
	"alfanumerico": KindAlphanumeric,
}

// 校验类型对应的 validator 标签
var kindTags = map[string]string{
	KindNumericID:    "numeric_id",
	KindPhone:        "form_phone",
	KindDigitsOnly:   "digits_only",
	KindEmail:        "email_shape",
	KindAlphanumeric: "alnum_space",
}

var kindMessages = map[string]string{
	KindNumericID:    "必须是 7 到 11 位数字",
	KindPhone:        "必须是 7 到 15 位数字（可包含 + - ( ) 和空格）",
	KindDigitsOnly:   "只能包含数字",
	KindEmail:        "邮箱格式不正确",
	KindAlphanumeric: "只能包含字母、数字和空格",
}

var (
	numericIDPattern    = regexp.MustCompile(`^\d{7,11}$`)
	phoneDigitsPattern  = regexp.MustCompile(`^\d{7,15}$`)
	digitsPattern       = regexp.MustCompile(`^\d+$`)
	emailPattern        = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	alphanumericPattern = regexp.MustCompile(`^[a-zA-Z0-9\s]+$`)

	phoneSeparators = strings.NewReplacer("+", "", "-", "", "(", "", ")", "", " ", "")
)

// NormalizeKind 将别名转换为标准校验类型，未知类型返回空
func NormalizeKind(kind string) string {
	k := strings.ToLower(strings.TrimSpace(kind))
	if alias, ok := kindAliases[k]; ok {
		return alias
	}
	if _, ok := kindTags[k]; ok {
		return k
	}
	return ""
}

// KindMessage 校验失败提示
func KindMessage(kind string) string {
	return kindMessages[NormalizeKind(kind)]
}

// RegisterKinds 在 validator 上注册各校验类型的标签（也用于 gin 的绑定校验）
func RegisterKinds(v *validator.Validate) error {
	rules := map[string]func(string) bool{
		"numeric_id": numericIDPattern.MatchString,
		"form_phone": func(s string) bool {
			return phoneDigitsPattern.MatchString(phoneSeparators.Replace(s))
		},
		"digits_only": digitsPattern.MatchString,
		"email_shape": emailPattern.MatchString,
		"alnum_space": alphanumericPattern.MatchString,
	}
	for tag, rule := range rules {
		rule := rule
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return rule(fl.Field().String())
		}); err != nil {
			return err
		}
	}
	return nil
}

// NewValidator 注册了全部校验类型的 validator
func NewValidator() *validator.Validate {
	v := validator.New()
	if err := RegisterKinds(v); err != nil {
		panic(err)
	}
	return v
}

// CheckKind 按校验类型检查值；未知或缺省类型总是通过
func CheckKind(v *validator.Validate, kind, value string) bool {
	tag, ok := kindTags[NormalizeKind(kind)]
	if !ok {
		return true
	}
	return v.Var(value, tag) == nil
}
