// Package i18n holds the user-facing message catalog of the HTTP API and
// picks a catalog language from the request's lang header.
package i18n

import "golang.org/x/text/language"

// Code identifies a catalog message; the code itself is returned when a
// language has no entry for it.
type Code string

const (
	UserCreated       Code = "user.created"
	UserRetrieved     Code = "user.retrieved"
	UserListRetrieved Code = "user.list_retrieved"
	UserUpdated       Code = "user.updated"
	UserDeleted       Code = "user.deleted"

	LoginSuccess   Code = "auth.login_success"
	LogoutSuccess  Code = "auth.logout_success"
	RefreshSuccess Code = "auth.refresh_success"

	BadRequest      Code = "common.bad_request"
	Unauthorized    Code = "common.unauthorized"
	Forbidden       Code = "common.forbidden"
	NotFound        Code = "common.not_found"
	InternalError   Code = "common.internal_error"
	ValidationError Code = "common.validation_error"

	UserNotFound   Code = "user.not_found"
	UsernameExists Code = "user.username_exists"
)

// DefaultLanguage is served when the header is absent or unsupported.
const DefaultLanguage = "vi"

var catalog = map[string]map[Code]string{
	"vi": {
		UserCreated:       "Tạo người dùng thành công",
		UserRetrieved:     "Lấy thông tin người dùng thành công",
		UserListRetrieved: "Lấy danh sách người dùng thành công",
		UserUpdated:       "Cập nhật người dùng thành công",
		UserDeleted:       "Xóa người dùng thành công",
		LoginSuccess:      "Đăng nhập thành công",
		LogoutSuccess:     "Đăng xuất thành công",
		RefreshSuccess:    "Làm mới phiên đăng nhập thành công",
		BadRequest:        "Yêu cầu không hợp lệ",
		Unauthorized:      "Chưa xác thực",
		Forbidden:         "Không có quyền truy cập",
		NotFound:          "Không tìm thấy tài nguyên",
		InternalError:     "Lỗi hệ thống, vui lòng thử lại sau",
		ValidationError:   "Dữ liệu không hợp lệ",
		UserNotFound:      "Không tìm thấy người dùng",
		UsernameExists:    "Tên người dùng đã tồn tại",
	},
	"en": {
		UserCreated:       "User created successfully",
		UserRetrieved:     "User retrieved successfully",
		UserListRetrieved: "User list retrieved successfully",
		UserUpdated:       "User updated successfully",
		UserDeleted:       "User deleted successfully",
		LoginSuccess:      "Login successful",
		LogoutSuccess:     "Logout successful",
		RefreshSuccess:    "Token refreshed successfully",
		BadRequest:        "Bad request",
		Unauthorized:      "Unauthorized",
		Forbidden:         "Forbidden",
		NotFound:          "Resource not found",
		InternalError:     "Internal server error",
		ValidationError:   "Validation error",
		UserNotFound:      "User not found",
		UsernameExists:    "Username already exists",
	},
}

// supported lists catalog languages; the first one is the fallback.
var supported = []language.Tag{language.Vietnamese, language.English}

var matcher = language.NewMatcher(supported)

// Negotiate maps a lang header value such as "en-US" or "vi;q=0.9, en" to a
// catalog language.
func Negotiate(header string) string {
	if header == "" {
		return DefaultLanguage
	}
	tag, _ := language.MatchStrings(matcher, header)
	base, _ := tag.Base()
	if _, ok := catalog[base.String()]; !ok {
		return DefaultLanguage
	}
	return base.String()
}

// Message returns the text for code in lang, falling back to the default
// language and finally to the code itself.
func Message(lang string, code Code) string {
	msgs, ok := catalog[lang]
	if !ok {
		msgs = catalog[DefaultLanguage]
	}
	if m, ok := msgs[code]; ok {
		return m
	}
	return string(code)
}
