package docs

func obj(required []string, props map[string]*Schema) *Schema {
	return &Schema{Type: "object", Properties: props, Required: required}
}

func integer() *Schema { return &Schema{Type: "integer"} }
func str() *Schema     { return &Schema{Type: "string"} }

// Schemas are the named components referenced by the route table.
func Schemas() map[string]*Schema {
	zero := 0.0
	idOrName := &Schema{OneOf: []*Schema{integer(), str()}, Description: "id or name"}
	return map[string]*Schema{
		"Credentials": obj([]string{"username", "password"}, map[string]*Schema{
			"username": {Type: "string", MaxLength: 150, Description: "letters, digits and @/./+/-/_ only"},
			"password": {Type: "string", MaxLength: 128, Format: "password"},
		}),
		"User": obj(nil, map[string]*Schema{
			"id":       integer(),
			"username": str(),
			"is_staff": {Type: "boolean"},
		}),
		"Session": obj([]string{"token", "user"}, map[string]*Schema{
			"token": str(),
			"user":  Ref("User"),
		}),
		"UserProfile": obj(nil, map[string]*Schema{
			"id": integer(),
			"user": obj(nil, map[string]*Schema{
				"id":       integer(),
				"username": str(),
			}),
			"tasksCompleted": integer(),
			"points_earned":  integer(),
		}),
		"AddAndroidApp": obj([]string{"name", "points", "category"}, map[string]*Schema{
			"name":        {Type: "string", MaxLength: 255},
			"points":      {Type: "integer", Minimum: &zero},
			"category":    idOrName,
			"subcategory": idOrName,
		}),
		"AndroidApp": obj(nil, map[string]*Schema{
			"id":          integer(),
			"name":        str(),
			"points":      integer(),
			"category":    integer(),
			"subcategory": {Type: "integer", Nullable: true},
		}),
		"SubCategory": obj(nil, map[string]*Schema{
			"id":       integer(),
			"name":     str(),
			"category": integer(),
		}),
		"Category": obj(nil, map[string]*Schema{
			"id":            integer(),
			"name":          str(),
			"subcategories": ArrayOf(Ref("SubCategory")),
		}),
		"Task": obj(nil, map[string]*Schema{
			"id":         integer(),
			"user":       integer(),
			"app":        integer(),
			"completed":  {Type: "boolean"},
			"screenshot": {Type: "string", Format: "uri", Nullable: true},
			"created_at": {Type: "string", Format: "date-time"},
		}),
		"DownloadRequest": obj([]string{"app_id"}, map[string]*Schema{
			"app_id": integer(),
		}),
		"DownloadResult": obj(nil, map[string]*Schema{
			"message":       str(),
			"points_earned": integer(),
			"total_points":  integer(),
			"user_profile":  Ref("UserProfile"),
		}),
		"ScreenshotResult": obj(nil, map[string]*Schema{
			"message":      str(),
			"task":         Ref("Task"),
			"user_profile": Ref("UserProfile"),
		}),
		"UserTasks": obj(nil, map[string]*Schema{
			"user_profile": Ref("UserProfile"),
			"tasks":        ArrayOf(Ref("Task")),
		}),
		"Error": obj([]string{"error"}, map[string]*Schema{
			"error":      str(),
			"fields":     {Type: "object", AdditionalProperties: str()},
			"request_id": str(),
		}),
	}
}
