package knowledge

import "github.com/google/uuid"

// entityIDScheme 实体 ID 的命名空间 URI 前缀
const entityIDScheme = "repolens://"

// NewEntityID 生成确定性实体 ID
// 相同的仓库、文件路径和名称总是产生同一个 ID，重复摄取保持幂等
func NewEntityID(repositoryID, filePath, name string) string {
	seed := entityIDScheme + repositoryID + "/" + filePath + "#" + name
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed)).String()
}
