package permissions

// Permission bits shared across the platform resource types.
var (
	Access         = Permission{Name: "ACCESS", Value: 1}
	Read           = Permission{Name: "READ", Value: 2}
	Update         = Permission{Name: "UPDATE", Value: 4}
	Create         = Permission{Name: "CREATE", Value: 8}
	Delete         = Permission{Name: "DELETE", Value: 16}
	ReadHistory    = Permission{Name: "READ_HISTORY", Value: 32}
	TaskWork       = Permission{Name: "TASK_WORK", Value: 64}
	TaskAssign     = Permission{Name: "TASK_ASSIGN", Value: 128}
	CreateInstance = Permission{Name: "CREATE_INSTANCE", Value: 256}
	ReadInstance   = Permission{Name: "READ_INSTANCE", Value: 512}
	UpdateInstance = Permission{Name: "UPDATE_INSTANCE", Value: 1024}
	DeleteInstance = Permission{Name: "DELETE_INSTANCE", Value: 2048}
)

// Built-in resource types. Authorization is the self-governing type: managing
// authorization rows is itself gated on it.
var (
	ResourceApplication       = Resource{Type: 0, Name: "Application"}
	ResourceUser              = Resource{Type: 1, Name: "User"}
	ResourceGroup             = Resource{Type: 2, Name: "Group"}
	ResourceGroupMembership   = Resource{Type: 3, Name: "Group Membership"}
	ResourceAuthorization     = Resource{Type: 4, Name: "Authorization"}
	ResourceProcessDefinition = Resource{Type: 6, Name: "Process Definition"}
	ResourceTask              = Resource{Type: 7, Name: "Task"}
	ResourceProcessInstance   = Resource{Type: 8, Name: "Process Instance"}
	ResourceDeployment        = Resource{Type: 9, Name: "Deployment"}
	ResourceTenant            = Resource{Type: 11, Name: "Tenant"}
	ResourceTenantMembership  = Resource{Type: 12, Name: "Tenant Membership"}
)

func init() {
	crud := []Permission{Read, Update, Create, Delete}

	register := []struct {
		resource Resource
		perms    []Permission
	}{
		{ResourceApplication, []Permission{Access}},
		{ResourceUser, crud},
		{ResourceGroup, crud},
		{ResourceGroupMembership, []Permission{Create, Delete}},
		{ResourceAuthorization, crud},
		{ResourceProcessDefinition, []Permission{Read, Update, Create, Delete, ReadHistory, CreateInstance, ReadInstance, UpdateInstance, DeleteInstance}},
		{ResourceTask, []Permission{Read, Update, Create, Delete, TaskWork, TaskAssign}},
		{ResourceProcessInstance, []Permission{Read, Update, Create, Delete, ReadHistory}},
		{ResourceDeployment, []Permission{Read, Create, Delete}},
		{ResourceTenant, crud},
		{ResourceTenantMembership, []Permission{Create, Delete}},
	}

	for _, entry := range register {
		if err := RegisterResource(entry.resource, entry.perms...); err != nil {
			panic(err)
		}
	}
}
