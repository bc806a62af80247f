package navigation

import "safety-app/internal/domain"

// DefaultPath is where the router lands when the location is unknown
const DefaultPath = "/"

// DefaultRoutes is the route table of the safety training site
func DefaultRoutes() []domain.Route {
	return []domain.Route{
		{Path: "/", Name: "home", Title: "安全管理交互页面", Component: "index.html"},
		{Path: "/video1", Name: "video1", Title: "你的选择决定安全分界-遵守规章制度-安全", Component: "video1.html"},
		{Path: "/video2", Name: "video2", Title: "你的选择决定安全分界-违规操作-不安全", Component: "video2.html"},
		{Path: "/quiz1", Name: "quiz1", Title: "测测你的主动安全意识有多强-按章操作", Component: "quiz1.html"},
		{Path: "/quiz2", Name: "quiz2", Title: "测测你的主动安全意识有多强-违规操作", Component: "quiz2.html"},
		{Path: "/admin", Name: "admin", Title: "管理页面", Component: "admin.html", RequiresAuth: true},
	}
}
