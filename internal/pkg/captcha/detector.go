package captcha

import "strings"

// 检测类型,与 puppet_captcha_incidents.detection_type 取值一致
const (
	TypeCaptcha            = "captcha"
	TypePhoneVerification  = "phone_verification"
	TypeSecurityCheckpoint = "security_checkpoint"
	TypeAccountRestriction = "account_restriction"
	TypeSuspiciousActivity = "suspicious_activity"
	TypeLoginChallenge     = "login_challenge"
)

// 检测方式
const (
	MethodURLPattern      = "url_pattern"
	MethodElementSelector = "element_selector"
	MethodTextContent     = "text_content"
)

const (
	selectorConfidence = 0.95
	textConfidence     = 0.90
	urlConfidence      = 0.99
)

// PageState 浏览器执行器抓取的页面快照
type PageState struct {
	URL       string
	Title     string
	BodyText  string
	Selectors []string // 页面上可见元素命中的 CSS 选择器
}

// Detection 一次安全检测的命中结果
type Detection struct {
	Type       string
	Method     string
	Confidence float64
	Evidence   string // 命中的选择器、关键词或 URL 片段
	PageURL    string
}

// URL 快速检查片段,命中即视为 security checkpoint
var warningURLFragments = []string{
	"/checkpoint/challenge",
	"/captcha",
	"/security/challenge",
	"/authwall",
}

// 各检测类型的元素选择器,按扫描顺序排列
var detectionSelectors = []struct {
	detectionType string
	selectors     []string
}{
	{TypeCaptcha, []string{
		`iframe[src*="recaptcha"]`,
		`.g-recaptcha`,
		`#recaptcha`,
		`[data-sitekey]`,
		`iframe[src*="hcaptcha"]`,
		`.h-captcha`,
		`#hcaptcha`,
		`[data-test-id="captcha-internal"]`,
		`.captcha-container`,
		`#captcha`,
		`[data-cy="captcha"]`,
		`.challenge-page`,
		`.security-challenge`,
		`.captcha-challenge`,
	}},
	{TypePhoneVerification, []string{
		`input[type="tel"]`,
		`[data-test-id="phone-verification"]`,
		`.phone-verification`,
		`.challenge-stepup-phone`,
		`.phone-challenge`,
		`.add-phone`,
		`.phone-number-input`,
	}},
	{TypeSecurityCheckpoint, []string{
		`.security-checkpoint`,
		`.checkpoint-challenge`,
		`.identity-verification`,
		`.account-verification`,
		`.suspicious-login`,
		`[data-test-id="checkpoint"]`,
		`.verification-challenge`,
	}},
	{TypeAccountRestriction, []string{
		`.account-restricted`,
		`.temporary-restriction`,
		`.account-limitation`,
		`.restriction-notice`,
		`.blocked-account`,
		`.account-suspended`,
	}},
	{TypeSuspiciousActivity, []string{
		`.suspicious-activity`,
		`.unusual-activity`,
		`.activity-warning`,
		`.security-warning`,
		`.fraud-detection`,
	}},
	{TypeLoginChallenge, []string{
		`.login-challenge`,
		`.two-factor`,
		`.verification-code`,
		`.email-verification`,
		`.sms-verification`,
		`.mfa-challenge`,
	}},
}

// 各检测类型的正文关键词,全部小写
var detectionKeywords = []struct {
	detectionType string
	keywords      []string
}{
	{TypeCaptcha, []string{
		"solve the puzzle",
		"verify you are human",
		"prove you are not a robot",
		"complete the security check",
		"i'm not a robot",
	}},
	{TypePhoneVerification, []string{
		"verify your phone",
		"add your phone number",
		"phone verification",
		"enter your phone number",
		"verify with sms",
	}},
	{TypeSecurityCheckpoint, []string{
		"security checkpoint",
		"verify your identity",
		"account verification",
		"verify it's you",
		"complete verification",
	}},
	{TypeAccountRestriction, []string{
		"account has been restricted",
		"temporarily limited",
		"account suspended",
		"violating our terms",
		"account is temporarily restricted",
	}},
	{TypeSuspiciousActivity, []string{
		"unusual activity detected",
		"suspicious login",
		"we noticed unusual activity",
		"security alert",
		"unauthorized access",
	}},
	{TypeLoginChallenge, []string{
		"enter the code",
		"verification code",
		"two-factor",
		"authenticator",
		"check your email",
	}},
}

// Detector 对页面快照做 LinkedIn 安全挑战检测
type Detector struct{}

func NewDetector() *Detector {
	return &Detector{}
}

// QuickCheck 仅按 URL 片段做快速拦截,用于页面跳转后的首次判断
func (d *Detector) QuickCheck(pageURL string) *Detection {
	lower := strings.ToLower(pageURL)
	for _, fragment := range warningURLFragments {
		if strings.Contains(lower, fragment) {
			detectionType := TypeSecurityCheckpoint
			if strings.Contains(fragment, "captcha") {
				detectionType = TypeCaptcha
			}
			return &Detection{
				Type:       detectionType,
				Method:     MethodURLPattern,
				Confidence: urlConfidence,
				Evidence:   fragment,
				PageURL:    pageURL,
			}
		}
	}
	return nil
}

// Classify 对完整页面快照做检测,选择器命中优先于关键词命中,
// 首个命中的检测类型即为结果
func (d *Detector) Classify(state PageState) *Detection {
	if hit := d.QuickCheck(state.URL); hit != nil {
		return hit
	}

	visible := make(map[string]bool, len(state.Selectors))
	for _, sel := range state.Selectors {
		visible[sel] = true
	}
	for _, group := range detectionSelectors {
		for _, sel := range group.selectors {
			if visible[sel] {
				return &Detection{
					Type:       group.detectionType,
					Method:     MethodElementSelector,
					Confidence: selectorConfidence,
					Evidence:   sel,
					PageURL:    state.URL,
				}
			}
		}
	}

	body := strings.ToLower(state.BodyText)
	if body == "" {
		return nil
	}
	for _, group := range detectionKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(body, kw) {
				return &Detection{
					Type:       group.detectionType,
					Method:     MethodTextContent,
					Confidence: textConfidence,
					Evidence:   kw,
					PageURL:    state.URL,
				}
			}
		}
	}
	return nil
}
