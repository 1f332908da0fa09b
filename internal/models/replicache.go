package models

import "time"

// ClientGroup представляет группу логических клиентов, разделяющих один
// поток мутаций и счетчик версий CVR. Создается лениво при первом
// pull/push. CVRVersion - наибольший cookie.order, когда-либо выданный
// этой группе; строго возрастает при каждом непустом pull.
type ClientGroup struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userID"`
	CVRVersion int64     `json:"cvrVersion"`
	CreatedAt  time.Time `json:"-"`
}

// Client представляет один логический клиент внутри группы.
// LastMutationID - наибольший успешно учтенный порядковый номер мутации
// этого клиента; обеспечивает exactly-once и строгий порядок применения.
type Client struct {
	ID             string    `json:"id"`
	ClientGroupID  string    `json:"clientGroupID"`
	LastMutationID int64     `json:"lastMutationID"`
	CreatedAt      time.Time `json:"-"`
}
