package api

import "encoding/json"

// Cookie представляет непрозрачное состояние синхронизации, которое хранит
// клиент между pull-запросами. Order - строго возрастающий счетчик версий
// в рамках client group, CVRID - идентификатор снапшота CVR на сервере.
type Cookie struct {
	CVRID string `json:"cvrID"`
	Order int64  `json:"order"`
}

// PullRequest представляет запрос на инкрементальную синхронизацию.
// Cookie == nil означает, что у клиента нет состояния (полный resync).
type PullRequest struct {
	Cookie        *Cookie `json:"cookie"`
	ClientGroupID string  `json:"clientGroupID"`
}

// PullResponse представляет ответ сервера на pull.
type PullResponse struct {
	Cookie *Cookie `json:"cookie"`
	// LastMutationIDChanges маппинг clientID -> lastMutationID
	// для клиентов, чей счетчик изменился с прошлого pull
	LastMutationIDChanges map[string]int64 `json:"lastMutationIDChanges"`
	Patch                 []PatchOperation `json:"patch"`
}

// Patch operation kinds.
const (
	OpClear = "clear"
	OpPut   = "put"
	OpDel   = "del"
)

// PatchOperation представляет одну операцию патча для локального кэша
// клиента. Key имеет формат "<collection>/<entityID>".
type PatchOperation struct {
	Op    string          `json:"op"`
	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Mutation представляет одну мутацию от клиента. ID - строго возрастающий
// порядковый номер в рамках clientID, начинается с 1. Args валидируются
// по схеме конкретной мутации до каких-либо изменений состояния.
type Mutation struct {
	ClientID string          `json:"clientID"`
	Name     string          `json:"name"`
	Args     json.RawMessage `json:"args"`
	ID       int64           `json:"id"`
}

// PushRequest представляет запрос на применение мутаций.
// Мутации применяются в порядке следования, каждая в своей транзакции.
type PushRequest struct {
	ClientGroupID string     `json:"clientGroupID"`
	Mutations     []Mutation `json:"mutations"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}
