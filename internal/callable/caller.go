package callable

// Caller 是一次函数调用的认证身份，UID 为空表示未认证。
type Caller struct {
	UID    string
	Claims map[string]interface{}
}

// Authenticated 报告调用方是否已认证。
func (c *Caller) Authenticated() bool {
	return c != nil && c.UID != ""
}

// IsAdmin 读取 admin 声明。
func (c *Caller) IsAdmin() bool {
	if c == nil || c.Claims == nil {
		return false
	}
	admin, _ := c.Claims["admin"].(bool)
	return admin
}

// RequireAuth 在调用方未认证时返回 unauthenticated。
func RequireAuth(c *Caller) (string, error) {
	if !c.Authenticated() {
		return "", Errorf(CodeUnauthenticated, "the function must be called while authenticated")
	}
	return c.UID, nil
}
