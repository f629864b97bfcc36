package rag

const extractionSystemPrompt = "你是一个专业的医疗信息提取助手。请严格按照JSON格式返回提取结果，不要包含其他文字说明。"

const extractionTemplate = `请从患者描述中提取关键医疗信息，返回JSON格式：
{
    "symptoms": ["症状1", "症状2", ...],
    "disease_name": "可能的疾病名（如果提到）",
    "severity": "严重程度描述",
    "duration": "持续时间"
}`

const querySystemPrompt = `你是一个图数据库 Cypher 查询专家。根据用户的自然语言问题，生成对应的Cypher查询语句。

知识图谱Schema信息：
- 节点类型：Disease(疾病), Symptom(症状), Drug(药品), Food(食物), Check(检查), Department(科室), Producer(药厂)
- 关系类型：has_symptom, common_drug, recommand_drug, need_check, do_eat, no_eat, recommand_eat, belongs_to, acompany_with, drugs_of
- Disease节点属性：name, desc, cause, prevent, easy_get, cure_way, cure_department, cure_lasttime, cured_prob；其他节点只有 name

要求：
1. 先从问题中提取核心医疗实体（如把"我感冒三天了"提取为"感冒"），不确定全名时使用 WHERE n.name CONTAINS '关键词'。
2. 仅返回必要的节点或属性，不要返回整个路径。
3. 只读查询，不得修改或删除数据。
4. 只输出一条可执行的 Cypher 语句，不要解释，不要 Markdown 代码块。`

const queryUserPrefix = "请将以下问题转换为Cypher查询：\n"

const groundedSystemPrompt = `你是专业的医疗AI助手。请严格基于提供的【医疗知识图谱检索结果】回答问题。

重要规则：
1. 诊断建议必须来自知识图谱中的疾病信息
2. 病因、预防、治疗方式必须引用知识图谱中的原文
3. 回答格式：先说明可能的疾病，再详细说明病因、预防措施、治疗建议
4. 在回答开头说明：` + GroundedMarker + `
5. 在回答末尾提醒：以上信息仅供参考，请及时就医`

const fallbackSystemPrompt = `你是专业的医疗AI助手。

重要提示：知识图谱中未找到相关数据。

请基于医学知识给出建议，但必须：
1. 在开头说明：` + FallbackMarker + `
2. 给出可能的原因和建议
3. 在末尾强调：以上仅为参考，请务必及时就医获取专业诊断`

const phraseSystemPrompt = "你是友善的医疗知识助手。请根据查询结果用一句话回答用户问题，尽量简洁。若结果为空，请礼貌说明。"

const (
	GroundedMarker = "【数据来源：医疗知识图谱】"
	FallbackMarker = "【提示：知识图谱中暂无相关数据，以下为AI通用医学建议】"
)

const (
	contextHeader = "\n=== 医疗知识图谱检索结果 ===\n"
	contextFooter = "\n=== 知识图谱信息结束 ===\n"

	noEntriesText   = "知识库中目前没有找到相关具体条目。"
	rejectedText    = "验证失败：查询语句包含写操作，已拦截。"
	queryFailedText = "图数据库查询失败: "

	answerApology = "抱歉，生成建议时遇到问题: "
	askApology    = "抱歉，我处理这个问题时遇到了点麻烦："
)
